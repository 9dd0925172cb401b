package whiteboard

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncboard/internal/patch"
	"syncboard/internal/syncobj"
)

type nopTransport struct{}

func (nopTransport) SendToParticipant(participantID string, message interface{}) error { return nil }
func (nopTransport) SendToSession(sessionID string, message interface{}) error         { return nil }

func newTestManager(t *testing.T, config Config) (*Manager, *syncobj.Registry) {
	t.Helper()
	registry := syncobj.NewRegistry(nopTransport{}, 0)
	m := NewManager(registry, config)
	require.NoError(t, m.SessionStarted(context.Background(), "s1"))
	return m, registry
}

func addLine(id string) AddAction {
	return AddAction{Objects: []PositionedObject{{StoredObject: StoredObject{ID: id, Data: line(1)}}}}
}

func publishedState(t *testing.T, registry *syncobj.Registry) State {
	t.Helper()
	state, ok := registry.GetFullState("s1")[ObjectName].(State)
	require.True(t, ok)
	return state
}

func TestBoard_UndoRedo(t *testing.T) {
	m, registry := newTestManager(t, Config{})

	require.NoError(t, m.Execute("s1", addLine("1")))
	require.NoError(t, m.Execute("s1", UpdateAction{Patches: []ObjectPatch{scalePatch(t, "1", 2)}}))

	state := publishedState(t, registry)
	assert.True(t, state.CanUndo)
	assert.False(t, state.CanRedo)

	require.NoError(t, m.Undo("s1"))
	b, err := m.Board("s1")
	require.NoError(t, err)
	obj, _ := b.Canvas().Find("1")
	assert.Equal(t, 1.0, obj.Shape.(*Line).ScaleY)

	require.NoError(t, m.Redo("s1"))
	obj, _ = b.Canvas().Find("1")
	assert.Equal(t, 2.0, obj.Shape.(*Line).ScaleY)

	require.NoError(t, m.Undo("s1"))
	require.NoError(t, m.Undo("s1"))
	assert.Equal(t, 0, b.Canvas().Len())
	assert.ErrorIs(t, m.Undo("s1"), ErrNothingToUndo)

	state = publishedState(t, registry)
	assert.False(t, state.CanUndo)
	assert.True(t, state.CanRedo)
}

func TestBoard_ForwardActionClearsRedo(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	require.NoError(t, m.Execute("s1", addLine("1")))
	require.NoError(t, m.Undo("s1"))
	require.NoError(t, m.Execute("s1", addLine("2")))

	assert.ErrorIs(t, m.Redo("s1"), ErrNothingToRedo)
}

func TestBoard_NoOpActionRecordsNoHistory(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	require.NoError(t, m.Execute("s1", addLine("1")))
	require.NoError(t, m.Execute("s1", UpdateAction{Patches: []ObjectPatch{scalePatch(t, "missing", 5)}}))
	require.NoError(t, m.Execute("s1", UpdateAction{Patches: []ObjectPatch{scalePatch(t, "1", 1)}}))

	b, err := m.Board("s1")
	require.NoError(t, err)
	undo, redo := b.HistoryDepth()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 0, redo)
}

func TestBoard_UndoDepthDropsOldest(t *testing.T) {
	m, _ := newTestManager(t, Config{UndoDepth: 2})

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, m.Execute("s1", addLine(id)))
	}

	require.NoError(t, m.Undo("s1"))
	require.NoError(t, m.Undo("s1"))
	assert.ErrorIs(t, m.Undo("s1"), ErrNothingToUndo)

	b, err := m.Board("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, b.Canvas().IDs())
}

func TestBoard_AssignsMissingIDs(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	require.NoError(t, m.Execute("s1", AddAction{Objects: []PositionedObject{
		{StoredObject: StoredObject{Data: line(1)}},
		{StoredObject: StoredObject{Data: line(2)}},
	}}))

	b, err := m.Board("s1")
	require.NoError(t, err)
	canvas := b.Canvas()
	require.Equal(t, 2, canvas.Len())
	assert.NoError(t, canvas.Validate())
	assert.NotEmpty(t, canvas.Objects[0].ID)
}

func TestBoard_ClearIsUndoable(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	require.NoError(t, m.Execute("s1", addLine("1")))
	require.NoError(t, m.Execute("s1", addLine("2")))
	require.NoError(t, m.Clear("s1"))

	b, err := m.Board("s1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Canvas().Len())

	require.NoError(t, m.Undo("s1"))
	assert.Equal(t, []string{"1", "2"}, b.Canvas().IDs())
}

func TestManager_ActionSizeLimits(t *testing.T) {
	m, _ := newTestManager(t, Config{MaxObjectsPerAction: 1})

	assert.ErrorIs(t, m.Execute("s1", RemoveAction{}), ErrEmptyAction)
	assert.ErrorIs(t, m.Execute("s1", RemoveAction{ObjectIDs: []string{"a", "b"}}), ErrTooManyObjects)
}

func TestManager_SessionLifecycle(t *testing.T) {
	m, registry := newTestManager(t, Config{})

	assert.ErrorIs(t, m.Execute("other", addLine("1")), ErrBoardNotFound)

	require.NoError(t, m.SessionStarted(context.Background(), "s1"), "starting twice is harmless")
	assert.Equal(t, 1, m.GetStats()["boards"])

	registry.SessionEnded("s1")
	m.SessionEnded("s1")

	assert.ErrorIs(t, m.Undo("s1"), ErrBoardNotFound)
	assert.Equal(t, 0, m.GetStats()["boards"])
}

func TestState_EncodesEmptyCanvasAsArray(t *testing.T) {
	_, registry := newTestManager(t, Config{})

	data, err := json.Marshal(publishedState(t, registry))
	require.NoError(t, err)
	assert.JSONEq(t, `{"objects":[],"canUndo":false,"canRedo":false}`, string(data))
}

func TestState_RemovingFrontObjectDiffsInConstantSize(t *testing.T) {
	add := AddAction{}
	for i := 0; i < 50; i++ {
		add.Objects = append(add.Objects, PositionedObject{StoredObject: StoredObject{ID: strconv.Itoa(i), Data: line(1)}})
	}
	canvas, _, err := add.Execute(NewCanvas())
	require.NoError(t, err)

	after, restore, err := RemoveAction{ObjectIDs: []string{"0"}}.Execute(canvas)
	require.NoError(t, err)

	before := State{Objects: canvas.Objects}
	removed := State{Objects: after.Objects, CanUndo: true}

	p, err := patch.Diff(before, removed)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Len(), 2)

	applied, err := patch.Apply(before, p)
	require.NoError(t, err)
	assertSameJSON(t, removed, applied)

	// undo re-inserts at the original index with an equally small diff
	undone, _, err := restore.Execute(after)
	require.NoError(t, err)
	reinserted := State{Objects: undone.Objects, CanRedo: true}

	back, err := patch.Diff(removed, reinserted)
	require.NoError(t, err)
	assert.LessOrEqual(t, back.Len(), 3)

	applied, err = patch.Apply(removed, back)
	require.NoError(t, err)
	assertSameJSON(t, reinserted, applied)
}

func assertSameJSON(t *testing.T, want, got interface{}) {
	t.Helper()
	wantJSON, err := json.Marshal(want)
	require.NoError(t, err)
	gotJSON, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(wantJSON), string(gotJSON))
}

func TestBoard_FailedPublishLeavesBoardUnchanged(t *testing.T) {
	m, registry := newTestManager(t, Config{})
	require.NoError(t, m.Execute("s1", addLine("1")))

	b, err := m.Board("s1")
	require.NoError(t, err)

	// with its object gone the board can no longer publish
	require.NoError(t, registry.Unregister("s1", ObjectName))

	err = m.Execute("s1", addLine("2"))
	assert.ErrorIs(t, err, syncobj.ErrObjectRemoved)
	assert.Equal(t, []string{"1"}, b.Canvas().IDs())
	undo, redo := b.HistoryDepth()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 0, redo)

	err = m.Undo("s1")
	assert.ErrorIs(t, err, syncobj.ErrObjectRemoved)
	assert.Equal(t, []string{"1"}, b.Canvas().IDs())
	undo, redo = b.HistoryDepth()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 0, redo)
}
