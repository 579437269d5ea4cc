package core

// Variables holds values shared between the calls of one call cycle.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapVariables is a map-based Variables. It is not safe for concurrent use;
// each generator owns its own instance.
type MapVariables struct {
	data map[string]any
}

func NewVariables() *MapVariables {
	return &MapVariables{data: make(map[string]any)}
}

func (v *MapVariables) Get(key string) (any, bool) {
	val, ok := v.data[key]
	return val, ok
}

func (v *MapVariables) Set(key string, value any) {
	v.data[key] = value
}

// Len returns the number of stored values.
func (v *MapVariables) Len() int {
	return len(v.data)
}
