package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Snapshot is a point-in-time field -> value view of a matter record.
// Snapshots have no identity beyond the fields they contain; two snapshots
// are always compared structurally, never by reference.
type Snapshot map[string]any

// NewSnapshot copies the given field map so later mutation of the source
// cannot leak into the snapshot.
func NewSnapshot(fields map[string]any) Snapshot {
	if fields == nil {
		return Snapshot{}
	}
	out := make(Snapshot, len(fields))
	for key, value := range fields {
		out[key] = value
	}
	return out
}

// canonicalValue renders a value as a deterministic string. Object keys are
// sorted recursively so key-insertion order never affects the result.
func canonicalValue(value any) (string, error) {
	var builder strings.Builder
	if err := writeCanonical(&builder, value); err != nil {
		return "", err
	}
	return builder.String(), nil
}

func writeCanonical(builder *strings.Builder, value any) error {
	switch typed := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		builder.WriteByte('{')
		for idx, key := range keys {
			if idx > 0 {
				builder.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return err
			}
			builder.Write(encodedKey)
			builder.WriteByte(':')
			if err := writeCanonical(builder, typed[key]); err != nil {
				return err
			}
		}
		builder.WriteByte('}')
	case []any:
		builder.WriteByte('[')
		for idx, item := range typed {
			if idx > 0 {
				builder.WriteByte(',')
			}
			if err := writeCanonical(builder, item); err != nil {
				return err
			}
		}
		builder.WriteByte(']')
	case nil:
		builder.WriteString("null")
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Errorf("value %v is not canonicalizable: %w", typed, err)
		}
		builder.Write(encoded)
	}

	return nil
}
