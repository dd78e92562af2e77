package protocol

// Params is the parameter mapping of a request. Accessors mirror the loose
// typing of the wire format: absent or mistyped values fall back to the
// provided default, matching how handlers validate input before touching the
// core.
type Params map[string]any

// String returns the string value for key, or def if absent or not a string.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Int returns the integer value for key. JSON numbers decode as float64, so
// both forms are accepted.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// Bool returns the boolean value for key, or def if absent or not a boolean.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// StringMap returns the string-to-string mapping for key. Non-string values
// inside the mapping are skipped.
func (p Params) StringMap(key string) map[string]string {
	raw, ok := p[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
