package progress

import (
	"bytes"
	"encoding/json"
)

// ArtifactKind names a completed pipeline output.
type ArtifactKind string

const (
	ArtifactStudyGuide ArtifactKind = "studyGuide"
	ArtifactFlashcards ArtifactKind = "flashcards"
	ArtifactWorksheet  ArtifactKind = "worksheet"
)

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactStudyGuide, ArtifactFlashcards, ArtifactWorksheet:
		return true
	}
	return false
}

// Artifacts accumulates the completed outputs of one run. The latest payload
// for a kind wins. The zero value is an empty registry.
type Artifacts struct {
	items map[ArtifactKind]json.RawMessage
}

// Put stores payload under kind, replacing any earlier payload.
func (a *Artifacts) Put(kind ArtifactKind, payload json.RawMessage) {
	if a.items == nil {
		a.items = make(map[ArtifactKind]json.RawMessage)
	}
	a.items[kind] = cloneRaw(payload)
}

// Get returns the payload stored for kind.
func (a *Artifacts) Get(kind ArtifactKind) (json.RawMessage, bool) {
	p, ok := a.items[kind]
	if !ok {
		return nil, false
	}
	return cloneRaw(p), true
}

// Has reports whether kind holds exactly payload.
func (a *Artifacts) Has(kind ArtifactKind, payload json.RawMessage) bool {
	p, ok := a.items[kind]
	return ok && bytes.Equal(p, payload)
}

// All returns a copy of every stored artifact.
func (a *Artifacts) All() map[ArtifactKind]json.RawMessage {
	out := make(map[ArtifactKind]json.RawMessage, len(a.items))
	for k, v := range a.items {
		out[k] = cloneRaw(v)
	}
	return out
}

// Len returns the number of stored artifacts.
func (a *Artifacts) Len() int {
	return len(a.items)
}

// Clone returns an independent copy of the registry.
func (a *Artifacts) Clone() Artifacts {
	if a.items == nil {
		return Artifacts{}
	}
	return Artifacts{items: a.All()}
}

func cloneRaw(src json.RawMessage) json.RawMessage {
	if src == nil {
		return nil
	}
	dst := make(json.RawMessage, len(src))
	copy(dst, src)
	return dst
}
