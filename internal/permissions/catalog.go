package permissions

import (
	"fmt"
	"sort"
)

// Kind is the JSON value kind a permission key accepts
type Kind int

const (
	KindBool Kind = iota
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Descriptor describes one known permission key
type Descriptor struct {
	Key     string      `json:"key"`
	Kind    Kind        `json:"-"`
	Default interface{} `json:"default"`
}

// BoolPermission is a typed handle on a boolean permission key
type BoolPermission struct {
	Key     string
	Default bool
}

// NumberPermission is a typed handle on a numeric permission key
type NumberPermission struct {
	Key     string
	Default float64
}

// Known permissions. Values absent from every layer fall back to Default.
var (
	CanOpenAndClose                  = BoolPermission{Key: "conference/canOpenAndClose"}
	CanSendChatMessage               = BoolPermission{Key: "chat/canSendMessage", Default: true}
	CanCreateWhiteboard              = BoolPermission{Key: "whiteboard/canCreate"}
	CanUpdateWhiteboardObjects       = BoolPermission{Key: "whiteboard/canUpdateObjects"}
	CanUndoWhiteboard                = BoolPermission{Key: "whiteboard/canUndo"}
	CanGiveTemporaryPermission       = BoolPermission{Key: "permissions/canGiveTemporaryPermission"}
	CanSeeAnyParticipantsPermissions = BoolPermission{Key: "permissions/canSeeAnyParticipantsPermissions"}
	CanShareScreen                   = BoolPermission{Key: "media/canShareScreen"}
	MaxWhiteboardObjectsPerAction    = NumberPermission{Key: "whiteboard/maxObjectsPerAction"}
)

var catalog = map[string]Descriptor{}

func init() {
	for _, p := range []BoolPermission{
		CanOpenAndClose,
		CanSendChatMessage,
		CanCreateWhiteboard,
		CanUpdateWhiteboardObjects,
		CanUndoWhiteboard,
		CanGiveTemporaryPermission,
		CanSeeAnyParticipantsPermissions,
		CanShareScreen,
	} {
		catalog[p.Key] = Descriptor{Key: p.Key, Kind: KindBool, Default: p.Default}
	}
	for _, p := range []NumberPermission{MaxWhiteboardObjectsPerAction} {
		catalog[p.Key] = Descriptor{Key: p.Key, Kind: KindNumber, Default: p.Default}
	}
}

// Lookup returns the descriptor of a known key
func Lookup(key string) (Descriptor, bool) {
	d, ok := catalog[key]
	return d, ok
}

// Catalog returns every known descriptor ordered by key
func Catalog() []Descriptor {
	out := make([]Descriptor, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ValidateValue checks value against key's kind and returns it normalized:
// every numeric type becomes float64 so values loaded from config files and
// values decoded from JSON diff as equal.
func ValidateValue(key string, value interface{}) (interface{}, error) {
	d, ok := catalog[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPermissionKey, key)
	}

	switch d.Kind {
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case KindNumber:
		if n, ok := toFloat(value); ok {
			return n, nil
		}
	case KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
	}

	return nil, fmt.Errorf("%w: %q expects %s, got %T", ErrInvalidPermissionValue, key, d.Kind, value)
}

// ValidateValues validates every entry and returns a normalized copy
func ValidateValues(values map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(values))
	for key, value := range values {
		normalized, err := ValidateValue(key, value)
		if err != nil {
			return nil, err
		}
		out[key] = normalized
	}
	return out, nil
}

func toFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
