// Package server serves bound pages live over a websocket.
//
// Each GET / builds a fresh page through a Factory (its own document,
// store and controller), starts a Session for it and returns the rendered
// HTML with a small client script. The script connects to /ws, forwards
// events of elements carrying data-tapas-id and applies the patches the
// session streams back.
//
// # Session Lifecycle
//
// A session runs its controller on one goroutine. The websocket read loop
// decodes frames and posts events to that goroutine; mutations of the
// document are observed as patches, buffered and flushed as one frame per
// burst. Patches produced while no websocket is attached are kept and
// sent on the next connection.
//
// Sessions without a connection are closed after the idle timeout.
// Closing a session stops its controller goroutine before releasing the
// store, so store handlers cannot outlive it.
//
// # Wire Format
//
// Frames are JSON text messages:
//
//	client → server  {"type":"event","path":[0,1,3],"event":"input","value":"luke"}
//	client → server  {"type":"ping"}
//	server → client  {"type":"patches","seq":1,"patches":[{"op":"SetText","path":[0,1,4],"value":"3"}]}
//	server → client  {"type":"error","code":"E034","message":"..."}
//	server → client  {"type":"pong"}
//
// Paths are child indexes from the document root counting every node
// type, as produced by dom.Document.Observe.
//
// # Endpoints
//
//	GET /          new session page
//	GET /ws        websocket for ?session=<id>
//	GET /tapas.js  client script
//	GET /metrics   Prometheus metrics
//	GET /healthz   liveness
package server
