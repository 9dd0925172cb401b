// Package whiteboard mutates a canvas through reversible actions and keeps a
// per-session undo/redo history.
package whiteboard

import "fmt"

// StoredObject is a canvas object with its id
type StoredObject struct {
	ID   string       `json:"id"`
	Data CanvasObject `json:"data"`
}

// Canvas is an ordered collection of objects. A Canvas value is never
// modified in place; actions return a new one.
type Canvas struct {
	Objects []StoredObject `json:"objects"`
}

// NewCanvas returns an empty canvas that encodes its objects as [] not null
func NewCanvas() Canvas {
	return Canvas{Objects: []StoredObject{}}
}

// Len returns the number of objects
func (c Canvas) Len() int {
	return len(c.Objects)
}

// IndexOf returns the position of id, or -1
func (c Canvas) IndexOf(id string) int {
	for i, obj := range c.Objects {
		if obj.ID == id {
			return i
		}
	}
	return -1
}

// Find returns the object with id
func (c Canvas) Find(id string) (CanvasObject, bool) {
	if i := c.IndexOf(id); i >= 0 {
		return c.Objects[i].Data, true
	}
	return CanvasObject{}, false
}

// IDs returns object ids in canvas order
func (c Canvas) IDs() []string {
	ids := make([]string, len(c.Objects))
	for i, obj := range c.Objects {
		ids[i] = obj.ID
	}
	return ids
}

// Validate checks that every id is present and unique
func (c Canvas) Validate() error {
	seen := make(map[string]struct{}, len(c.Objects))
	for _, obj := range c.Objects {
		if obj.ID == "" {
			return ErrMissingObjectID
		}
		if _, exists := seen[obj.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateObjectID, obj.ID)
		}
		seen[obj.ID] = struct{}{}
	}
	return nil
}

// clone copies the object slice; shapes are shared because actions replace
// them instead of mutating them
func (c Canvas) clone() Canvas {
	objects := make([]StoredObject, len(c.Objects))
	copy(objects, c.Objects)
	return Canvas{Objects: objects}
}
