package whiteboard

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"syncboard/internal/patch"
	"syncboard/internal/syncobj"
)

// ObjectName is the synchronized object name of a session's whiteboard
const ObjectName = "whiteboard"

// DefaultUndoDepth bounds the undo stack when no depth is configured
const DefaultUndoDepth = 100

// State is the synchronized value clients render
type State struct {
	Objects []StoredObject `json:"objects"`
	CanUndo bool           `json:"canUndo"`
	CanRedo bool           `json:"canRedo"`
}

// Board is one session's canvas and its history.
// ARCHITECTURAL DISCOVERY: One mutex per board serializes mutators within a
// session; boards of different sessions never share a lock
type Board struct {
	sessionID string
	undoDepth int

	mu     sync.Mutex
	canvas Canvas
	undo   []Action
	redo   []Action
	handle *syncobj.Handle[State]
}

func newBoard(registry *syncobj.Registry, sessionID string, undoDepth int) (*Board, error) {
	if undoDepth <= 0 {
		undoDepth = DefaultUndoDepth
	}

	b := &Board{
		sessionID: sessionID,
		undoDepth: undoDepth,
		canvas:    NewCanvas(),
	}

	handle, err := syncobj.Register(registry, sessionID, ObjectName, b.stateLocked())
	if err != nil {
		return nil, fmt.Errorf("register whiteboard: %w", err)
	}
	b.handle = handle

	return b, nil
}

// Canvas returns the current canvas
func (b *Board) Canvas() Canvas {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canvas
}

// HistoryDepth returns the sizes of the undo and redo stacks
func (b *Board) HistoryDepth() (undo, redo int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.undo), len(b.redo)
}

// Apply executes a forward action. An action that leaves the canvas unchanged
// records no history.
func (b *Board) Apply(action Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	action = assignIDs(action)

	next, inverse, err := action.Execute(b.canvas)
	if err != nil {
		return err
	}
	actionsExecuted.WithLabelValues(action.Kind()).Inc()

	changed, err := canvasChanged(b.canvas, next)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	return b.commitLocked(next, b.pushedUndo(inverse), nil)
}

// Undo executes the most recent inverse and makes its own inverse redoable
func (b *Board) Undo() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.undo) == 0 {
		return ErrNothingToUndo
	}

	top := b.undo[len(b.undo)-1]
	next, redo, err := top.Execute(b.canvas)
	if err != nil {
		return fmt.Errorf("undo %s: %w", top.Kind(), err)
	}

	redoStack := append(append([]Action(nil), b.redo...), redo)
	if err := b.commitLocked(next, b.undo[:len(b.undo)-1], redoStack); err != nil {
		return err
	}
	historySteps.WithLabelValues("undo").Inc()
	return nil
}

// Redo re-applies the most recently undone action
func (b *Board) Redo() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.redo) == 0 {
		return ErrNothingToRedo
	}

	top := b.redo[len(b.redo)-1]
	next, undo, err := top.Execute(b.canvas)
	if err != nil {
		return fmt.Errorf("redo %s: %w", top.Kind(), err)
	}

	if err := b.commitLocked(next, b.pushedUndo(undo), b.redo[:len(b.redo)-1]); err != nil {
		return err
	}
	historySteps.WithLabelValues("redo").Inc()
	return nil
}

// pushedUndo returns the undo stack with inverse on top, dropping the oldest
// entry past the depth. The current stack is left untouched.
func (b *Board) pushedUndo(inverse Action) []Action {
	stack := append(append(make([]Action, 0, len(b.undo)+1), b.undo...), inverse)
	if overflow := len(stack) - b.undoDepth; overflow > 0 {
		stack = stack[overflow:]
	}
	return stack
}

func (b *Board) stateLocked() State {
	return stateOf(b.canvas, b.undo, b.redo)
}

func stateOf(canvas Canvas, undo, redo []Action) State {
	return State{
		Objects: canvas.Objects,
		CanUndo: len(undo) > 0,
		CanRedo: len(redo) > 0,
	}
}

// commitLocked publishes the new state and adopts it only once the publish
// succeeded, so a failed command leaves the board exactly as it was
func (b *Board) commitLocked(canvas Canvas, undo, redo []Action) error {
	if err := b.handle.Set(stateOf(canvas, undo, redo)); err != nil {
		log.Printf("Whiteboard publish failed: session=%s error=%v", b.sessionID, err)
		return err
	}

	b.canvas = canvas
	b.undo = undo
	b.redo = redo
	return nil
}

// assignIDs gives every id-less object of an AddAction a fresh uuid so that
// Execute itself stays deterministic
func assignIDs(action Action) Action {
	add, ok := action.(AddAction)
	if !ok {
		return action
	}

	objects := make([]PositionedObject, len(add.Objects))
	copy(objects, add.Objects)
	for i := range objects {
		if objects[i].ID == "" {
			objects[i].ID = uuid.NewString()
		}
	}

	return AddAction{Objects: objects}
}

func canvasChanged(old, next Canvas) (bool, error) {
	p, err := patch.Diff(old, next)
	if err != nil {
		return false, err
	}
	return !p.IsEmpty(), nil
}
