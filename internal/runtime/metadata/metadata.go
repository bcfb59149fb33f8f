// Package metadata is the header map carried next to relay messages.
package metadata

// Metadata holds string headers. The zero value is usable for reads.
type Metadata map[string]string

// With returns a copy of m with key set to value.
func (m Metadata) With(key, value string) Metadata {
	cloned := make(Metadata, len(m)+1)
	for k, v := range m {
		cloned[k] = v
	}
	cloned[key] = value
	return cloned
}

// Get returns the value for key or "".
func (m Metadata) Get(key string) string {
	return m[key]
}
