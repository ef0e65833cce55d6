package clientdist

import _ "embed"

// TapasJS is the live client. It applies patch frames to the page and
// forwards events of elements carrying data-tapas-id.
//
// It is served by the live server at "/tapas.js".
//
//go:embed tapas.js
var TapasJS []byte
