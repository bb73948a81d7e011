package types

// JSONMap stores an arbitrary JSON object inside a JSONB column.
// Columns use the gorm json serializer so the same model works on sqlite.
type JSONMap map[string]any

// Clone returns a shallow copy safe to mutate.
func (j JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}

// Merge returns a copy of j with every key from other applied on top.
func (j JSONMap) Merge(other map[string]any) JSONMap {
	out := j.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// String returns the value under key when it is a string.
func (j JSONMap) String(key string) string {
	if v, ok := j[key].(string); ok {
		return v
	}
	return ""
}
