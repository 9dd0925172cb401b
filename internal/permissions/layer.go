package permissions

import (
	"context"
	"encoding/json"
	"sort"

	"syncboard/pkg/types"
)

// Layer is one prioritized set of permission values. On key conflict the
// layer with the higher priority wins.
type Layer struct {
	Priority int                    `json:"priority"`
	Source   string                 `json:"source"`
	Values   map[string]interface{} `json:"values"`
}

// LayerProvider contributes layers for a participant. Returning no layers is
// valid; returning an error makes the provider contribute nothing for that
// fetch.
type LayerProvider interface {
	Name() string
	FetchLayersForParticipant(ctx context.Context, participant types.Participant) ([]Layer, error)
}

// EffectivePermissions is the merged, read-only permission set of one
// participant.
type EffectivePermissions struct {
	values map[string]interface{}
}

// NewEffectivePermissions wraps values; the map is copied
func NewEffectivePermissions(values map[string]interface{}) EffectivePermissions {
	return EffectivePermissions{values: copyValues(values)}
}

// GetPermissionValue returns the raw value of key and whether any layer or
// override set it
func (e EffectivePermissions) GetPermissionValue(key string) (interface{}, bool) {
	v, ok := e.values[key]
	return v, ok
}

// Bool returns the value of a boolean permission, or its default
func (e EffectivePermissions) Bool(p BoolPermission) bool {
	if b, ok := e.values[p.Key].(bool); ok {
		return b
	}
	return p.Default
}

// Number returns the value of a numeric permission, or its default
func (e EffectivePermissions) Number(p NumberPermission) float64 {
	if n, ok := toFloat(e.values[p.Key]); ok {
		return n
	}
	return p.Default
}

// Values returns a copy of the merged key/value map
func (e EffectivePermissions) Values() map[string]interface{} {
	return copyValues(e.values)
}

// Len returns the number of keys set
func (e EffectivePermissions) Len() int {
	return len(e.values)
}

func (e EffectivePermissions) MarshalJSON() ([]byte, error) {
	if e.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.values)
}

// mergeLayers applies layers in ascending priority. Layers must arrive in
// provider registration order, then provider order; the stable sort keeps
// that order among equal priorities, so the later layer wins a tie.
func mergeLayers(layers []Layer, overrides map[string]interface{}) map[string]interface{} {
	sorted := make([]Layer, len(layers))
	copy(sorted, layers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	merged := make(map[string]interface{})
	for _, layer := range sorted {
		for key, value := range layer.Values {
			merged[key] = value
		}
	}

	for key, value := range overrides {
		merged[key] = value
	}

	return merged
}

func copyValues(values map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
