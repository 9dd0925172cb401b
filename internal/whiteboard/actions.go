package whiteboard

import (
	"encoding/json"
	"fmt"
	"sort"

	"syncboard/internal/patch"
)

// Action kinds as they appear on the wire
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionUpdate = "update"
)

// Action is a reversible canvas command. Execute is pure: it returns the new
// canvas and the action that undoes it, and never touches its input.
type Action interface {
	Kind() string

	// Len is the number of objects the action references
	Len() int

	Execute(canvas Canvas) (Canvas, Action, error)
}

// PositionedObject is an object to insert, optionally at a given index
type PositionedObject struct {
	StoredObject
	Position *int `json:"position,omitempty"`
}

// AddAction inserts objects. Objects without a position are appended.
// Its inverse is a RemoveAction of the same ids.
type AddAction struct {
	Objects []PositionedObject `json:"objects"`
}

func (a AddAction) Kind() string { return ActionAdd }
func (a AddAction) Len() int     { return len(a.Objects) }

func (a AddAction) Execute(canvas Canvas) (Canvas, Action, error) {
	seen := make(map[string]struct{}, len(a.Objects))
	for _, obj := range a.Objects {
		if obj.ID == "" {
			return canvas, nil, ErrMissingObjectID
		}
		if obj.Data.Shape == nil {
			return canvas, nil, fmt.Errorf("%w: object %s has no shape", ErrUnknownShape, obj.ID)
		}
		if _, exists := seen[obj.ID]; exists || canvas.IndexOf(obj.ID) >= 0 {
			return canvas, nil, fmt.Errorf("%w: %s", ErrDuplicateObjectID, obj.ID)
		}
		seen[obj.ID] = struct{}{}
	}

	var positioned, appended []PositionedObject
	for _, obj := range a.Objects {
		if obj.Position != nil {
			positioned = append(positioned, obj)
		} else {
			appended = append(appended, obj)
		}
	}

	// ascending inserts restore the indices a RemoveAction recorded
	sort.SliceStable(positioned, func(i, j int) bool {
		return *positioned[i].Position < *positioned[j].Position
	})

	objects := make([]StoredObject, 0, len(canvas.Objects)+len(a.Objects))
	objects = append(objects, canvas.Objects...)

	for _, obj := range positioned {
		at := *obj.Position
		if at < 0 {
			at = 0
		}
		if at > len(objects) {
			at = len(objects)
		}
		objects = append(objects, StoredObject{})
		copy(objects[at+1:], objects[at:])
		objects[at] = obj.StoredObject
	}
	for _, obj := range appended {
		objects = append(objects, obj.StoredObject)
	}

	ids := make([]string, len(a.Objects))
	for i, obj := range a.Objects {
		ids[i] = obj.ID
	}

	return Canvas{Objects: objects}, RemoveAction{ObjectIDs: ids}, nil
}

// RemoveAction deletes objects by id; ids not on the canvas are skipped. Its
// inverse is an AddAction that puts the objects back at their positions.
type RemoveAction struct {
	ObjectIDs []string `json:"objectIds"`
}

func (a RemoveAction) Kind() string { return ActionRemove }
func (a RemoveAction) Len() int     { return len(a.ObjectIDs) }

func (a RemoveAction) Execute(canvas Canvas) (Canvas, Action, error) {
	remove := make(map[string]struct{}, len(a.ObjectIDs))
	for _, id := range a.ObjectIDs {
		remove[id] = struct{}{}
	}

	objects := make([]StoredObject, 0, len(canvas.Objects))
	restored := make([]PositionedObject, 0, len(a.ObjectIDs))

	for i, obj := range canvas.Objects {
		if _, ok := remove[obj.ID]; ok {
			position := i
			restored = append(restored, PositionedObject{StoredObject: obj, Position: &position})
			continue
		}
		objects = append(objects, obj)
	}

	return Canvas{Objects: objects}, AddAction{Objects: restored}, nil
}

// ObjectPatch is a patch against one canvas object's data
type ObjectPatch struct {
	ObjectID string                    `json:"objectId"`
	Patch    patch.Patch[CanvasObject] `json:"patch"`
}

// UpdateAction patches objects in place. Patches for ids not on the canvas
// are skipped and contribute nothing to the inverse, which is again an
// UpdateAction.
type UpdateAction struct {
	Patches []ObjectPatch `json:"patches"`
}

func (a UpdateAction) Kind() string { return ActionUpdate }
func (a UpdateAction) Len() int     { return len(a.Patches) }

func (a UpdateAction) Execute(canvas Canvas) (Canvas, Action, error) {
	result := canvas.clone()
	inverse := make([]ObjectPatch, 0, len(a.Patches))

	for _, p := range a.Patches {
		i := result.IndexOf(p.ObjectID)
		if i < 0 {
			continue
		}

		old := result.Objects[i].Data
		updated, err := patch.Apply(old, p.Patch)
		if err != nil {
			return canvas, nil, fmt.Errorf("update %s: %w", p.ObjectID, err)
		}

		// per-object inverse, computed now rather than by diffing whole canvases
		undo, err := patch.Diff(updated, old)
		if err != nil {
			return canvas, nil, fmt.Errorf("update %s: %w", p.ObjectID, err)
		}

		result.Objects[i].Data = updated
		inverse = append(inverse, ObjectPatch{ObjectID: p.ObjectID, Patch: undo})
	}

	// a later patch for the same id must be undone first
	for i, j := 0, len(inverse)-1; i < j; i, j = i+1, j-1 {
		inverse[i], inverse[j] = inverse[j], inverse[i]
	}

	return result, UpdateAction{Patches: inverse}, nil
}

// DecodeAction decodes a client action of the form {"action": kind, ...}
func DecodeAction(data []byte) (Action, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Action {
	case ActionAdd:
		var a AddAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode add: %w", err)
		}
		return a, nil
	case ActionRemove:
		var a RemoveAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode remove: %w", err)
		}
		return a, nil
	case ActionUpdate:
		var a UpdateAction
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("decode update: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, head.Action)
	}
}
