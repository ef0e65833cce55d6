package server

import (
	"encoding/json"

	"github.com/vango-dev/tapas/pkg/dom"
)

// Frame types.
const (
	FrameEvent   = "event"
	FramePing    = "ping"
	FramePong    = "pong"
	FramePatches = "patches"
	FrameError   = "error"
	FrameReload  = "reload"
)

// ClientFrame is a message from the browser.
//
//	{"type":"event","path":[0,1,2],"event":"click","value":""}
type ClientFrame struct {
	Type   string `json:"type"`
	Path   []int  `json:"path,omitempty"`
	Event  string `json:"event,omitempty"`
	Value  string `json:"value,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// PatchesFrame carries the mutations of one flush. Seq increases by one
// per frame within a connection.
type PatchesFrame struct {
	Type    string      `json:"type"`
	Seq     uint64      `json:"seq"`
	Patches []dom.Patch `json:"patches"`
}

// ErrorFrame reports a failed event to the browser.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ReloadFrame asks the browser to reload after the project changed. When
// File names a stylesheet only the stylesheets are refreshed.
type ReloadFrame struct {
	Type string `json:"type"`
	File string `json:"file,omitempty"`
}

type pongFrame struct {
	Type string `json:"type"`
}

func decodeClientFrame(b []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
