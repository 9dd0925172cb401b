package whiteboard

import "errors"

// Whiteboard error types
var (
	ErrDuplicateObjectID = errors.New("canvas object id already exists")
	ErrMissingObjectID   = errors.New("canvas object id cannot be empty")
	ErrUnknownShape      = errors.New("unknown canvas object type")
	ErrUnknownAction     = errors.New("unknown canvas action")
	ErrEmptyAction       = errors.New("canvas action references no objects")
	ErrTooManyObjects    = errors.New("canvas action references too many objects")
	ErrBoardNotFound     = errors.New("no whiteboard for this session")
	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrNothingToRedo     = errors.New("nothing to redo")
)
