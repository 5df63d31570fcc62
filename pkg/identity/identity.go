// Package identity maps provider-native unique keys (ARNs, self links,
// UIDs) to stable opaque resource identifiers.
package identity

import "github.com/google/uuid"

// Namespace for name-based ids. Fixed so ids survive across runs and
// processes; changing it would re-key every known resource.
var namespace = uuid.MustParse("8e3f54c1-86af-4a93-9c5d-2f6b8d3f9a41")

// MakeID derives a deterministic fixed-width identifier from a
// provider-native unique key. Same key, same id, on every run; callers must
// treat the result as opaque.
func MakeID(key string) string {
	return uuid.NewSHA1(namespace, []byte(key)).String()
}
