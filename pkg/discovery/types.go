// Package discovery defines the shared resource graph model: discovered
// resources, the links correlated between them, and the Discovery aggregate
// produced by one run.
package discovery

// Meta classifies a discovered resource. Kind is a free-form domain tag
// (e.g. "repository", "global-backend-service", "k8s/node"); Platform and
// Category are optional coarse classifiers for cross-cutting queries.
type Meta struct {
	Name     string `json:"name"`
	Display  string `json:"display"`
	Kind     string `json:"kind"`
	Platform string `json:"platform,omitempty"`
	Category string `json:"category,omitempty"`
	Project  string `json:"project,omitempty"`
	Region   string `json:"region,omitempty"`
	Zone     string `json:"zone,omitempty"`
}

// Resource is one discovered infrastructure entity. ID is derived once from
// a provider-native unique key and never recomputed; Struct is the untouched
// provider payload whose schema varies per Kind.
type Resource struct {
	ID     string                 `json:"id"`
	Meta   Meta                   `json:"meta"`
	Struct map[string]interface{} `json:"struct"`
}

// Link is a directed edge attached to a source resource. Path is a
// human-readable location of the target inside the serialized document;
// Pointer is a JSON Pointer addressing the exact target node.
type Link struct {
	Direction string `json:"direction"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	Pointer   string `json:"pointer"`
}

// Discovery is the aggregate root for one run: every resource collected plus
// an index of links keyed by owning resource id. It is mutated only by the
// single-threaded assembly stage; concurrent collection happens before any
// Discovery exists.
type Discovery struct {
	Resources []Resource        `json:"resources"`
	Links     map[string][]Link `json:"links,omitempty"`
}

// New builds a Discovery over the given resources.
func New(resources []Resource) *Discovery {
	return &Discovery{
		Resources: resources,
		Links:     map[string][]Link{},
	}
}

// AddLink attaches l to the resource identified by id and reports whether
// the link was inserted. Attaching an equivalent link twice (same owner,
// direction, kind, pointer) is a no-op, which keeps link expansion
// idempotent; callers counting attached links must only count insertions.
func (d *Discovery) AddLink(id string, l Link) bool {
	for _, existing := range d.Links[id] {
		if existing.Direction == l.Direction && existing.Kind == l.Kind && existing.Pointer == l.Pointer {
			return false
		}
	}
	d.Links[id] = append(d.Links[id], l)
	return true
}

// Resource returns the resource with the given id, or nil.
func (d *Discovery) Resource(id string) *Resource {
	for i := range d.Resources {
		if d.Resources[i].ID == id {
			return &d.Resources[i]
		}
	}
	return nil
}
