// Package tapas binds declarative descriptors to an HTML page and keeps
// the page in sync with a reducer store.
//
// A project is a directory holding tapas.json, the page and its
// descriptor file:
//
//	app, err := tapas.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//
//	// Render the settled page once.
//	app.Render(ctx, os.Stdout)
//
//	// Or serve it live: one document, store and controller per browser tab.
//	app.Run(ctx)
//
// Go code can extend the catalog that tapas.json declares:
//
//	app, err := tapas.New(cfg, tapas.WithCatalog(func(c *catalog.Catalog) {
//	    c.Transforms.Register("money", formatMoney)
//	}))
package tapas

// Version is the tapas release.
const Version = "0.4.0"
