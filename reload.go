package tapas

import (
	"context"
	"path/filepath"
	"time"

	"github.com/vango-dev/tapas/internal/config"
	"github.com/vango-dev/tapas/internal/dev"
	"github.com/vango-dev/tapas/internal/errors"
)

// Reload reads tapas.json and the files it names again. Pages created
// afterwards use the new project; live sessions keep the page they were
// built with. The server and static settings of the first load stay in
// effect. On error the previous project is kept.
func (a *App) Reload() error {
	cur := a.Config()
	cfg := cur
	if path := cur.Path(); path != "" {
		next, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		next.Server = cur.Server
		next.Static = cur.Static
		next.Log = cur.Log
		cfg = next
	}

	proj, err := loadProject(cfg)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.project = proj
	a.mu.Unlock()
	a.logger.Info("project reloaded", "descriptors", len(proj.descriptors))
	return nil
}

// Watch polls the project files and the static directory until ctx is
// done. A project change reloads the App and then every connected browser;
// a failed reload is shown in the browser consoles instead. An asset
// change reloads the browsers, or only their stylesheets for CSS.
func (a *App) Watch(ctx context.Context, interval time.Duration) error {
	w := dev.NewProjectWatcher(a.Config(), interval)
	w.OnChange(a.applyChange)
	err := w.Start(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *App) applyChange(c dev.Change) {
	a.logger.Debug("file changed", "path", c.Path, "type", c.Type)
	srv := a.liveServer()

	switch c.Type {
	case dev.ChangeProject:
		if err := a.Reload(); err != nil {
			a.logger.Error("reload failed", "path", c.Path, "error", errors.Compact(err))
			if srv != nil {
				srv.ReportError(err)
			}
			return
		}
		if srv != nil {
			srv.Reload("")
		}
	case dev.ChangeStyle:
		if srv != nil {
			srv.Reload(filepath.Base(c.Path))
		}
	default:
		if srv != nil {
			srv.Reload("")
		}
	}
}
