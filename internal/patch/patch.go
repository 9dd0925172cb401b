// Package patch computes and applies structural diffs between two values of
// the same type. Operations follow the RFC 6902 path/op/value convention so a
// patch can be shipped to clients verbatim.
//
// A value participates in diffing through its JSON encoding: T must round-trip
// through encoding/json for Apply(old, Diff(old, new)) to equal new.
package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/wI2L/jsondiff"
)

// Operation kinds emitted by Diff
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpMove    = "move"
	OpCopy    = "copy"
	OpTest    = "test"
)

// Operation is a single field-level change
type Operation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	From  string      `json:"from,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// MarshalJSON always writes value for operations that carry one, so a
// replace with null is not mistaken for a malformed operation.
func (o Operation) MarshalJSON() ([]byte, error) {
	switch o.Op {
	case OpAdd, OpReplace, OpTest:
		return json.Marshal(struct {
			Op    string      `json:"op"`
			Path  string      `json:"path"`
			Value interface{} `json:"value"`
		}{o.Op, o.Path, o.Value})
	default:
		return json.Marshal(struct {
			Op   string `json:"op"`
			Path string `json:"path"`
			From string `json:"from,omitempty"`
		}{o.Op, o.Path, o.From})
	}
}

// Patch is a typed list of operations produced against a value of type T
type Patch[T any] struct {
	Operations []Operation
}

// New wraps already-decoded operations, e.g. from a client command.
func New[T any](ops ...Operation) Patch[T] {
	return Patch[T]{Operations: ops}
}

// IsEmpty reports whether applying the patch would change nothing
func (p Patch[T]) IsEmpty() bool {
	return len(p.Operations) == 0
}

// Len returns the number of operations
func (p Patch[T]) Len() int {
	return len(p.Operations)
}

// MarshalJSON encodes the patch as a bare operation array
func (p Patch[T]) MarshalJSON() ([]byte, error) {
	if p.Operations == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Operations)
}

// UnmarshalJSON decodes a bare operation array
func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	var ops []Operation
	if err := json.Unmarshal(data, &ops); err != nil {
		return err
	}
	p.Operations = ops
	return nil
}

// Diff computes the operations that turn old into new. It is deterministic
// and has no side effects; Diff(v, v) is always empty.
// Arrays are aligned by longest common subsequence, so inserting or removing
// one element costs one operation wherever it sits.
func Diff[T any](old, new T) (Patch[T], error) {
	ops, err := jsondiff.Compare(old, new, jsondiff.LCS())
	if err != nil {
		return Patch[T]{}, fmt.Errorf("%w: %v", ErrDiff, err)
	}

	if len(ops) == 0 {
		return Patch[T]{}, nil
	}

	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, Operation{
			Op:    op.Type,
			Path:  op.Path,
			From:  op.From,
			Value: op.Value,
		})
	}

	return Patch[T]{Operations: out}, nil
}

// Apply returns a new value with the patch applied; value itself is not
// modified. Applying a patch to a value other than the one it was computed
// against is not detected.
func Apply[T any](value T, p Patch[T]) (T, error) {
	var result T

	if p.IsEmpty() {
		return value, nil
	}

	doc, err := json.Marshal(value)
	if err != nil {
		return result, fmt.Errorf("%w: encode value: %v", ErrApply, err)
	}

	raw, err := json.Marshal(p.Operations)
	if err != nil {
		return result, fmt.Errorf("%w: encode operations: %v", ErrApply, err)
	}

	decoded, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrApply, err)
	}

	patched, err := decoded.Apply(doc)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrApply, err)
	}

	if err := json.Unmarshal(patched, &result); err != nil {
		return result, fmt.Errorf("%w: decode value: %v", ErrApply, err)
	}

	return result, nil
}
