// Package tools manages the function-calling tool surface offered to the
// LLM: the fixed meta-tools, discovery of externally registered tools,
// and execution dispatch.
package tools

// Set is the growing tool-schema collection for a single user turn,
// keyed by function name. The orchestration loop owns one per turn and
// threads it through each round explicitly; nothing mutates it behind
// the loop's back.
type Set struct {
	names   map[string]struct{}
	schemas []map[string]any
}

// NewSet returns a set seeded with the given schema blocks.
func NewSet(blocks ...[]map[string]any) *Set {
	s := &Set{names: make(map[string]struct{})}
	for _, block := range blocks {
		s.AddAll(block)
	}
	return s
}

// Add inserts a schema unless its function name is already present or
// missing. Reports whether the schema was added.
func (s *Set) Add(schema map[string]any) bool {
	name := SchemaName(schema)
	if name == "" {
		return false
	}
	if _, dup := s.names[name]; dup {
		return false
	}
	s.names[name] = struct{}{}
	s.schemas = append(s.schemas, schema)
	return true
}

// AddAll inserts each schema, skipping duplicates, and returns how many
// were added.
func (s *Set) AddAll(schemas []map[string]any) int {
	added := 0
	for _, schema := range schemas {
		if s.Add(schema) {
			added++
		}
	}
	return added
}

// Has reports whether a function name is present.
func (s *Set) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of schemas.
func (s *Set) Len() int { return len(s.schemas) }

// Schemas returns the schema list in insertion order. Callers must not
// modify the returned slice.
func (s *Set) Schemas() []map[string]any { return s.schemas }

// SchemaName extracts the function name from an OpenAI-format tool
// schema, or "" if the schema is malformed.
func SchemaName(schema map[string]any) string {
	fn, ok := schema["function"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := fn["name"].(string)
	return name
}
