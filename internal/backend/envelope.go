package backend

// The upstream API is not consistent about response envelopes: the same
// logical payload arrives as a bare value, wrapped in {"data": ...}, or
// wrapped under a resource key such as {"matter": {...}} or
// {"activity": [...]}. Rather than drilling into arbitrary keys, the
// recognized shapes are enumerated here and unwrapped a bounded number of
// times.

// maxEnvelopeDepth bounds unwrapping so a pathological payload cannot recurse.
const maxEnvelopeDepth = 4

// UnwrapRecord extracts a single record object from a decoded JSON payload.
// Recognized shapes: a bare object, {"matter": {...}}, {"data": <shape>}, and
// an array whose first element is a record object.
func UnwrapRecord(payload any) (map[string]any, bool) {
	current := payload
	for depth := 0; depth < maxEnvelopeDepth; depth++ {
		switch typed := current.(type) {
		case map[string]any:
			if inner, ok := typed["data"]; ok {
				current = inner
				continue
			}
			if inner, ok := typed["matter"].(map[string]any); ok {
				return inner, true
			}
			return typed, true
		case []any:
			if len(typed) == 0 {
				return nil, false
			}
			record, ok := typed[0].(map[string]any)
			return record, ok
		default:
			return nil, false
		}
	}
	return nil, false
}

// UnwrapActivityList extracts the activity entry list from a decoded JSON
// payload. Recognized shapes: a bare array, {"activity": [...]}, and
// {"data": <shape>}.
func UnwrapActivityList(payload any) ([]any, bool) {
	current := payload
	for depth := 0; depth < maxEnvelopeDepth; depth++ {
		switch typed := current.(type) {
		case []any:
			return typed, true
		case map[string]any:
			if inner, ok := typed["activity"]; ok {
				current = inner
				continue
			}
			if inner, ok := typed["data"]; ok {
				current = inner
				continue
			}
			return nil, false
		default:
			return nil, false
		}
	}
	return nil, false
}
