// Package events holds the change notifications pushed by the ledger server
// over its websocket endpoint.
package events

import "time"

type Type string

const (
	TypeHello      Type = "hello"
	TypeFileWrite  Type = "file_write"
	TypeFileDelete Type = "file_delete"
)

type Event struct {
	Type     Type      `json:"type"`
	Path     string    `json:"path,omitempty"`
	Revision uint64    `json:"revision,omitempty"`
	Hash     string    `json:"hash,omitempty"`
	Origin   string    `json:"origin,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

func NewFileWrite(path string, revision uint64, hash, origin string) *Event {
	return &Event{Type: TypeFileWrite, Path: path, Revision: revision, Hash: hash, Origin: origin, Time: time.Now().UTC()}
}

func NewFileDelete(path, origin string) *Event {
	return &Event{Type: TypeFileDelete, Path: path, Origin: origin, Time: time.Now().UTC()}
}

func NewHello(version string) *Event {
	return &Event{Type: TypeHello, Message: version, Time: time.Now().UTC()}
}

// IsChange reports whether the event describes a change to the remote file set.
func (e *Event) IsChange() bool {
	return e.Type == TypeFileWrite || e.Type == TypeFileDelete
}
