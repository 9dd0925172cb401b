package patch

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Kind   string            `json:"kind"`
	ScaleX float64           `json:"scaleX"`
	ScaleY float64           `json:"scaleY"`
	Points []int             `json:"points"`
	Tags   map[string]string `json:"tags,omitempty"`
	Locked bool              `json:"locked"`
}

func TestDiff_IdenticalValuesAreEmpty(t *testing.T) {
	v := sample{Kind: "line", ScaleX: 1, ScaleY: 1, Points: []int{1, 2, 3}}

	p, err := Diff(v, v)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
	assert.Equal(t, 0, p.Len())
}

func TestDiff_FloatComparesByValue(t *testing.T) {
	a := sample{ScaleY: 1.5}
	b := sample{ScaleY: 1.5}

	p, err := Diff(a, b)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}

func TestDiff_SingleFieldChangeIsStructural(t *testing.T) {
	old := sample{Kind: "line", ScaleX: 1, ScaleY: 1, Points: []int{1, 2, 3}}
	updated := old
	updated.ScaleY = 2

	p, err := Diff(old, updated)
	require.NoError(t, err)
	require.Len(t, p.Operations, 1)

	op := p.Operations[0]
	assert.Equal(t, OpReplace, op.Op)
	assert.Equal(t, "/scaleY", op.Path)
	assert.EqualValues(t, 2, op.Value)
}

func TestApply_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		old  sample
		new  sample
	}{
		{
			name: "scalar change",
			old:  sample{Kind: "line", ScaleY: 1},
			new:  sample{Kind: "line", ScaleY: 2},
		},
		{
			name: "slice grows",
			old:  sample{Points: []int{1, 2}},
			new:  sample{Points: []int{1, 2, 3, 4}},
		},
		{
			name: "slice shrinks",
			old:  sample{Points: []int{1, 2, 3, 4}},
			new:  sample{Points: []int{9}},
		},
		{
			name: "map keys added and removed",
			old:  sample{Points: []int{}, Tags: map[string]string{"a": "1", "b": "2"}},
			new:  sample{Points: []int{}, Tags: map[string]string{"b": "3", "c": "4"}},
		},
		{
			name: "bool flips to false",
			old:  sample{Locked: true, Points: []int{}},
			new:  sample{Locked: false, Points: []int{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Diff(tt.old, tt.new)
			require.NoError(t, err)
			assert.False(t, p.IsEmpty())

			got, err := Apply(tt.old, p)
			require.NoError(t, err)
			assert.Equal(t, tt.new, got)

			inverse, err := Diff(tt.new, tt.old)
			require.NoError(t, err)

			restored, err := Apply(got, inverse)
			require.NoError(t, err)
			assert.Equal(t, tt.old, restored)
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	old := sample{Points: []int{1, 2, 3}}
	p, err := Diff(old, sample{Points: []int{1, 5, 3}})
	require.NoError(t, err)

	_, err = Apply(old, p)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, old.Points)
}

func TestApply_EmptyPatchReturnsValue(t *testing.T) {
	v := sample{Kind: "rect"}
	got, err := Apply(v, Patch[sample]{})
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestApply_ClientSuppliedOperations(t *testing.T) {
	var p Patch[sample]
	require.NoError(t, json.Unmarshal([]byte(`[{"op":"add","path":"/scaleY","value":2.0}]`), &p))

	got, err := Apply(sample{Kind: "line", ScaleY: 1}, p)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.ScaleY)
	assert.Equal(t, "line", got.Kind)
}

func TestApply_InvalidPathFails(t *testing.T) {
	p := New[sample](Operation{Op: OpRemove, Path: "/does/not/exist"})

	_, err := Apply(sample{}, p)
	assert.ErrorIs(t, err, ErrApply)
}

func TestDiff_Deterministic(t *testing.T) {
	old := sample{Kind: "a", ScaleX: 1, ScaleY: 1, Tags: map[string]string{"x": "1", "y": "2", "z": "3"}}
	updated := sample{Kind: "b", ScaleX: 2, ScaleY: 3, Tags: map[string]string{"x": "9", "y": "8", "z": "7"}}

	first, err := Diff(old, updated)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Diff(old, updated)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestOperation_MarshalKeepsFalsyValues(t *testing.T) {
	data, err := json.Marshal(Operation{Op: OpReplace, Path: "/locked", Value: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"replace","path":"/locked","value":false}`, string(data))

	data, err = json.Marshal(Operation{Op: OpReplace, Path: "/tags", Value: nil})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"replace","path":"/tags","value":null}`, string(data))

	data, err = json.Marshal(Operation{Op: OpRemove, Path: "/tags"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"remove","path":"/tags"}`, string(data))
}

func TestPatch_MarshalEmptyAsArray(t *testing.T) {
	data, err := json.Marshal(Patch[sample]{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

type item struct {
	ID    string  `json:"id"`
	Scale float64 `json:"scale"`
}

func TestDiff_ArrayEditIsProportionalToChange(t *testing.T) {
	items := make([]item, 50)
	for i := range items {
		items[i] = item{ID: fmt.Sprintf("i%d", i), Scale: float64(i)}
	}
	old := struct {
		Items []item `json:"items"`
	}{Items: items}

	removed := old
	removed.Items = append([]item(nil), items[1:]...)

	p, err := Diff(old, removed)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Len(), 2)

	applied, err := Apply(old, p)
	require.NoError(t, err)
	assert.Equal(t, removed, applied)

	// the reverse edit puts the element back at the front
	back, err := Diff(removed, old)
	require.NoError(t, err)
	assert.LessOrEqual(t, back.Len(), 2)

	restored, err := Apply(removed, back)
	require.NoError(t, err)
	assert.Equal(t, old, restored)
}
