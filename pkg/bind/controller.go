package bind

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/tapas/internal/errors"
	"github.com/vango-dev/tapas/pkg/catalog"
	"github.com/vango-dev/tapas/pkg/dom"
	"github.com/vango-dev/tapas/pkg/expr"
	"github.com/vango-dev/tapas/pkg/registry"
	"github.com/vango-dev/tapas/pkg/store"
)

// IDAttr is the attribute that addresses an element from a descriptor.
const IDAttr = "data-tapas-id"

// TemplateIDAttr records the id a stamped list item was copied from.
const TemplateIDAttr = "data-tapas-template-id"

const tracerName = "tapas"

// Store is the part of a store the controller depends on.
type Store interface {
	State() any
	Dispatch(ctx context.Context, a store.Action) error
	Subscribe(fn store.Listener) (unsubscribe func())
}

// Controller owns the bindings of one document. It is not safe for
// concurrent use: every method, and every task posted to its queue, must
// run on the goroutine that owns the document.
type Controller struct {
	doc     *dom.Document
	store   Store
	catalog *catalog.Catalog
	engine  *expr.Engine
	reg     *registry.Registry[*dom.Element]
	configs *registry.Configs[Descriptor]
	queue   *Queue
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	ownEngine bool
	ctx       context.Context
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for failures of deferred hooks.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics sets the metrics the controller updates.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithEngine shares an expression engine between controllers.
func WithEngine(e *expr.Engine) Option {
	return func(c *Controller) {
		c.engine = e
	}
}

// WithQueue sets the task queue. Pass the same queue to the store's
// scheduler so actions put by effects run on the controller goroutine.
func WithQueue(q *Queue) Option {
	return func(c *Controller) {
		c.queue = q
	}
}

// WithTracer sets the tracer for dispatch and event spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// New creates a controller binding doc to st, resolving names in cat.
func New(doc *dom.Document, st Store, cat *catalog.Catalog, opts ...Option) *Controller {
	c := &Controller{
		doc:     doc,
		store:   st,
		catalog: cat,
		reg: registry.New(func(e *dom.Element) (*dom.Element, bool) {
			return e.Parent()
		}),
		configs: registry.NewConfigs(func(d Descriptor) bool { return d.List != nil }),
		logger:  slog.Default(),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = expr.NewEngine()
		c.ownEngine = true
	}
	if c.queue == nil {
		c.queue = NewQueue()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// Document returns the bound document.
func (c *Controller) Document() *dom.Document { return c.doc }

// Registry returns the element registry.
func (c *Controller) Registry() *registry.Registry[*dom.Element] { return c.reg }

// Queue returns the task queue.
func (c *Controller) Queue() *Queue { return c.queue }

// Post defers fn to the controller goroutine.
func (c *Controller) Post(fn func()) { c.queue.Post(fn) }

// Run executes posted work until ctx is done.
func (c *Controller) Run(ctx context.Context) error { return c.queue.Run(ctx) }

// Close releases the expression engine when the controller created it.
func (c *Controller) Close() {
	if c.ownEngine {
		c.engine.Close()
	}
}

// Bind records the descriptor of the element carrying d.ID. Its parent
// configuration is the one of the nearest ancestor element that carries
// an id, when that id is already bound; parents must be bound first.
func (c *Controller) Bind(d Descriptor) error {
	if d.ID == "" {
		return errors.New("E041")
	}
	el, err := c.find(nil, d.ID)
	if err != nil {
		return err
	}
	parent := ""
	for p, ok := el.Parent(); ok; p, ok = p.Parent() {
		if id, has := p.Attr(IDAttr); has {
			if _, known := c.configs.Get(id); known {
				parent = id
			}
			break
		}
	}
	return c.configs.Register(d.ID, parent, d)
}

// BindAll binds descriptors in order.
func (c *Controller) BindAll(ds []Descriptor) error {
	for _, d := range ds {
		if err := c.Bind(d); err != nil {
			return err
		}
	}
	return nil
}

// Bootstrap initializes every top-level configuration together with its
// nested configurations, then runs the deferred init hooks.
func (c *Controller) Bootstrap() error {
	done := make(map[string]bool)
	for _, top := range c.configs.TopLevel() {
		for _, e := range c.configs.Nested(top.ID) {
			if done[e.ID] {
				continue
			}
			done[e.ID] = true
			if err := c.initElement(e.ID, e.Config, nil); err != nil {
				return c.record(err)
			}
		}
	}
	c.queue.Drain()
	return nil
}

// find locates the element carrying id, inside source (itself included)
// or in the whole document when source is nil.
func (c *Controller) find(source *dom.Element, id string) (*dom.Element, error) {
	sel := fmt.Sprintf("[%s=%q]", IDAttr, id)
	var (
		el  *dom.Element
		err error
	)
	if source == nil {
		el, err = c.doc.QuerySelector(sel)
	} else {
		el, err = source.Find(sel)
	}
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, errors.New("E034").WithDetailf("%s %q", IDAttr, id)
	}
	return el, nil
}

// target resolves the optional target selector of a binding inside el.
func (c *Controller) target(el *dom.Element, sel string) (*dom.Element, error) {
	if sel == "" {
		return el, nil
	}
	t, err := el.QuerySelector(sel)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.New("E034").WithDetailf("target %q", sel)
	}
	return t, nil
}

// initElement binds the element carrying id, searched inside source.
func (c *Controller) initElement(id string, d Descriptor, source *dom.Element) error {
	el, err := c.find(source, id)
	if err != nil {
		return err
	}
	h, ok := c.reg.Lookup(el)
	if !ok {
		if h, err = c.reg.Register(el, registry.None); err != nil {
			return err
		}
		c.metrics.elementsBound.Inc()
	}

	state := make(map[string]any, len(d.DefaultState))
	maps.Copy(state, d.DefaultState)
	if err := c.reg.Update(h, func(n *registry.Node[*dom.Element]) {
		n.ConfigID = id
		n.State = state
	}); err != nil {
		return err
	}

	steps := []func() error{
		func() error { return c.bindSelectors(h, d.Selectors) },
		func() error { return c.bindText(h, el, d.Text) },
		func() error { return c.bindHTML(h, el, d.HTML) },
		func() error { return c.bindAttributes(h, el, d.Attributes) },
		func() error { return c.bindClasses(h, el, d.Classes) },
		func() error { return c.bindEvents(h, el, d.Events) },
		func() error { return c.bindList(h, el, d.List) },
		func() error { return c.ApplyBindings(h, false) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("bind %s: %w", id, err)
		}
	}

	c.queue.Post(func() {
		if _, ok := c.reg.Get(h); !ok {
			return
		}
		if err := c.fireHook(h, "init"); err != nil {
			c.report("init hook failed", h, err)
		}
	})
	return nil
}

// ApplyBindings runs every binding of h in kind order, and with deep set
// every binding of its descendants too. It stops at the first error.
// Nodes that fire at least one effect get their change hook queued.
func (c *Controller) ApplyBindings(h registry.Handle, deep bool) error {
	handles := []registry.Handle{h}
	if deep {
		handles = c.reg.Descendants(h)
	}
	for _, cur := range handles {
		cur := cur
		chain := c.reg.Chain(cur)
		if len(chain) == 0 {
			// Torn down by a list binding applied earlier in this walk.
			continue
		}
		n := chain[len(chain)-1]
		scope := Scope(chain)
		fired := false
		for _, kind := range registry.Kinds {
			for _, b := range n.Bindings[kind] {
				c.metrics.bindingsApplied.WithLabelValues(string(kind)).Inc()
				ok, err := b.Apply(scope)
				if err != nil {
					return fmt.Errorf("%s binding of %s: %w", kind, n.ConfigID, err)
				}
				if ok {
					c.metrics.effectsFired.WithLabelValues(string(kind)).Inc()
					fired = true
				}
			}
		}
		if fired && hasHook(n.Events, "change") {
			c.queue.Post(func() {
				if _, ok := c.reg.Get(cur); !ok {
					return
				}
				if err := c.fireHook(cur, "change"); err != nil {
					c.report("change hook failed", cur, err)
				}
			})
		}
	}
	return nil
}

// Unbind tears down h and everything below it, children first. For each
// node it unsubscribes selectors, detaches listeners, fires the remove
// hook, unregisters the node, then detaches and releases its element.
func (c *Controller) Unbind(h registry.Handle) error {
	if _, ok := c.reg.Get(h); !ok {
		return errors.New("E030").WithDetailf("handle %d", h)
	}
	var errs []error
	for _, cur := range c.reg.PostOrder(h) {
		n, ok := c.reg.Get(cur)
		if !ok {
			continue
		}
		for _, s := range n.Selectors {
			if s.Unsubscribe != nil {
				s.Unsubscribe()
			}
		}
		for _, ev := range n.Events {
			if ev.Detach != nil {
				ev.Detach()
			}
		}
		if err := c.fireHook(cur, "remove"); err != nil {
			errs = append(errs, err)
		}
		if err := c.reg.Unregister(cur); err != nil {
			errs = append(errs, err)
		}
		c.metrics.elementsBound.Dec()
		n.Element.Remove()
		c.doc.Release(n.Element)
	}
	return errors.Join(errs...)
}

// Dispatch sends an action to the store and runs the work it queued.
func (c *Controller) Dispatch(ctx context.Context, a store.Action) error {
	ctx, span := c.tracer.Start(ctx, "tapas.dispatch",
		trace.WithAttributes(attribute.String("tapas.action", a.Type)))
	defer span.End()

	err := c.store.Dispatch(ctx, a)
	c.queue.Drain()
	return c.finish(span, c.record(err))
}

// HandleEvent delivers a host event to target and runs the work it queued.
func (c *Controller) HandleEvent(ctx context.Context, target *dom.Element, ev *dom.Event) error {
	id, _ := target.Attr(IDAttr)
	ctx, span := c.tracer.Start(ctx, "tapas.event",
		trace.WithAttributes(
			attribute.String("tapas.event_type", ev.Type),
			attribute.String("tapas.target", id),
		))
	defer span.End()

	prev := c.ctx
	c.ctx = ctx
	err := target.Dispatch(ev)
	c.ctx = prev

	c.queue.Drain()
	return c.finish(span, c.record(err))
}

func (c *Controller) finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// record counts a failure by code and returns it unchanged.
func (c *Controller) record(err error) error {
	if err == nil {
		return nil
	}
	code := errors.Code(err)
	if code == "" {
		code = "unknown"
	}
	c.metrics.bindErrors.WithLabelValues(code).Inc()
	return err
}

func (c *Controller) report(msg string, h registry.Handle, err error) {
	c.record(err)
	n, _ := c.reg.Get(h)
	c.logger.Error(msg, "element", n.ConfigID, "error", errors.Compact(err))
}
