// Package config provides configuration parsing for tapas projects.
//
// The configuration is stored in tapas.json next to the page it binds.
// This package handles loading, saving, and validating configuration.
// Relative paths are resolved against the directory of the file.
//
// # Configuration File Structure
//
//	{
//	  "name": "films",
//	  "document": "index.html",
//	  "bindings": "bindings.yaml",
//	  "initialState": {"list": {"search": "", "items": []}},
//	  "selectors": {"items": "list.items"},
//	  "filters": {"filmsByUrl": {"list": "films", "field": "url"}},
//	  "actions": {"setSearch": "SET_SEARCH", "loadList": "LOAD_LIST"},
//	  "reducer": [
//	    {"type": "SET_SEARCH", "op": "set", "path": "list.search"},
//	    {"type": "LIST_LOADED", "op": "set", "path": "list.items"}
//	  ],
//	  "fetch": {
//	    "LOAD_LIST": {"url": "https://swapi.dev/api/people/?search={{list.search}}",
//	                  "result": "results", "success": "LIST_LOADED", "latest": true}
//	  },
//	  "server": {"host": "localhost", "port": 3000, "idleTimeout": "2m"},
//	  "log": {"level": "info", "format": "text"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Address())
package config
