// Package templates provides project scaffolding for tapas init.
//
// # Available Templates
//
//   - counter: a button and a click counter
//   - films: a searchable film list loaded from an HTTP API
//
// # Usage
//
//	tmpl, err := templates.Get("films")
//	if err != nil {
//	    return err
//	}
//	err = tmpl.Create(projectDir, templates.Config{ProjectName: "films", Port: 3000})
//
// # Template Variables
//
// Files are text/template sources with [[ ]] delimiters:
//
//	[[.ProjectName]]  - Name of the project
//	[[.Description]]  - Project description
//	[[.Port]]         - Live server port
package templates
