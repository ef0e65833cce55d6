// Package dev watches a tapas project while it is being served.
//
// A Watcher polls the project files (tapas.json, the document, the
// descriptor file and the state file) and the static asset directory.
// Changes are classified so the caller can reload the project, refresh
// stylesheets or reload the browser:
//
//	w := dev.NewProjectWatcher(cfg, 250*time.Millisecond)
//	w.OnChange(func(c dev.Change) {
//	    switch c.Type {
//	    case dev.ChangeProject:
//	        // reload tapas.json and the files it names
//	    case dev.ChangeStyle, dev.ChangeAsset:
//	        // notify browsers
//	    }
//	})
//	err := w.Start(ctx)
//
// fsnotify events trigger a scan shortly after a write; a polling scan
// runs every interval as well, for file systems without notifications.
// One callback is made per change type and scan; a project change
// suppresses the asset callbacks of the same scan.
package dev
