package pathquery

import (
	"fmt"
	"strings"
)

// Step is one level of a match's ancestry: the container that was entered
// and the key or index used to enter it. Steps run from the document root
// down to the matched value, so callers can recover any enclosing node
// without re-querying.
type Step struct {
	Key       string
	Index     int
	IsIndex   bool
	Container interface{}
}

// Match is one selector hit. Value is the matched node; the ancestry chain
// identifies where in the serialized document it was found and which
// resource owns it.
type Match struct {
	Value    interface{}
	steps    []Step
	resource map[string]interface{}
}

// Ancestry returns the container chain from the document root to the
// matched value's immediate parent.
func (m *Match) Ancestry() []Step { return m.steps }

// Resource returns the serialized resource node owning this match.
func (m *Match) Resource() map[string]interface{} { return m.resource }

// ResourceID returns the owning resource's id, or "" when it is absent.
func (m *Match) ResourceID() string {
	id, _ := m.resource["id"].(string)
	return id
}

// ResourceMeta returns the owning resource's meta node.
func (m *Match) ResourceMeta() map[string]interface{} {
	meta, _ := m.resource["meta"].(map[string]interface{})
	return meta
}

// Str returns the matched value as a string, or "" for non-strings.
func (m *Match) Str() string {
	s, _ := m.Value.(string)
	return s
}

// Path renders a human-readable location of the match, e.g.
// $.resources[3].struct.backends[2].group.
func (m *Match) Path() string {
	var b strings.Builder
	b.WriteString("$")
	for _, s := range m.steps {
		if s.IsIndex {
			fmt.Fprintf(&b, "[%d]", s.Index)
		} else if strings.ContainsAny(s.Key, "./ ") {
			fmt.Fprintf(&b, "['%s']", s.Key)
		} else {
			b.WriteString(".")
			b.WriteString(s.Key)
		}
	}
	return b.String()
}

// Pointer renders a JSON Pointer (RFC 6901) addressing the match inside the
// serialized document.
func (m *Match) Pointer() string {
	var b strings.Builder
	for _, s := range m.steps {
		b.WriteString("/")
		if s.IsIndex {
			fmt.Fprintf(&b, "%d", s.Index)
		} else {
			b.WriteString(escapePointerToken(s.Key))
		}
	}
	return b.String()
}

func escapePointerToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

// ResolvePointer walks a JSON Pointer through a generic document, returning
// the addressed node. Used to verify that stored link pointers resolve
// inside the same snapshot.
func ResolvePointer(doc interface{}, pointer string) (interface{}, bool) {
	if pointer == "" {
		return doc, true
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, false
	}
	node := doc
	for _, token := range strings.Split(pointer[1:], "/") {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")
		switch v := node.(type) {
		case map[string]interface{}:
			child, ok := v[token]
			if !ok {
				return nil, false
			}
			node = child
		case []interface{}:
			var idx int
			if _, err := fmt.Sscanf(token, "%d", &idx); err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			node = v[idx]
		default:
			return nil, false
		}
	}
	return node, true
}
