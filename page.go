package tapas

import (
	"bytes"
	"context"

	"github.com/vango-dev/tapas/pkg/bind"
	"github.com/vango-dev/tapas/pkg/dom"
	"github.com/vango-dev/tapas/pkg/store"
)

// Page is one bootstrapped instance of the App's document. Its controller
// and store are single-goroutine: drive them through Controller.Post or
// from the goroutine running Controller.Run.
type Page struct {
	Controller *bind.Controller
	Store      *store.Store

	queue *bind.Queue
}

// NewPage parses the document, creates its store and catalog, binds every
// descriptor and bootstraps the result.
func (a *App) NewPage(ctx context.Context) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	proj := a.current()
	doc, err := dom.Parse(bytes.NewReader(proj.source))
	if err != nil {
		return nil, err
	}

	queue := bind.NewQueue()
	opts := []store.Option{
		store.WithScheduler(queue.Post),
		store.WithLogger(a.logger),
	}
	for t, f := range proj.config.Fetch {
		f.Client = a.client
		opts = append(opts, f.Option(t))
	}
	st := store.New(proj.reducer, proj.state, opts...)

	ctl := bind.New(doc, st, a.catalog(proj.config),
		bind.WithQueue(queue),
		bind.WithEngine(a.engine),
		bind.WithMetrics(a.metrics),
		bind.WithLogger(a.logger),
	)
	p := &Page{Controller: ctl, Store: st, queue: queue}
	if err := ctl.BindAll(proj.descriptors); err != nil {
		p.Close()
		return nil, err
	}
	if err := ctl.Bootstrap(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Close stops the store's handlers.
func (p *Page) Close() error {
	p.Controller.Close()
	return p.Store.Close()
}

// settle alternates between waiting for running handlers and running the
// actions they put, until both are idle or ctx is done.
func (p *Page) settle(ctx context.Context) {
	for {
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = p.Store.Wait()
		}()
		select {
		case <-done:
		case <-ctx.Done():
			_ = p.Store.Close()
			<-done
		}
		if p.queue.Drain() == 0 || ctx.Err() != nil {
			return
		}
	}
}
