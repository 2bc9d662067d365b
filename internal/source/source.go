// Package source holds the per-file input of the engine: the source path and
// the attribute mapping an external header reader extracted from it.
package source

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cast"
)

// MultiValueSeparator joins list-valued attributes into one string, the way
// DICOM renders multi-valued elements (e.g. ImageType "ORIGINAL\PRIMARY\M").
const MultiValueSeparator = `\`

// File is one source file: where it lives and what its header says.
type File struct {
	Path       string     `yaml:"path" json:"path"`
	Attributes Attributes `yaml:"attributes" json:"attributes"`
}

// Attributes maps attribute names to scalar or list-of-scalar values.
type Attributes map[string]any

// Get returns the string form of the named attribute. The boolean is false
// when the attribute is absent; the string is then empty.
func (a Attributes) Get(name string) (string, bool) {
	v, ok := a[name]
	if !ok {
		return "", false
	}

	return Stringify(v), true
}

// Value returns the string form of the named attribute, or "" if absent.
func (a Attributes) Value(name string) string {
	s, _ := a.Get(name)
	return s
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Fingerprint hashes the coerced attribute set. Two mappings with the same
// names and the same string forms have the same fingerprint.
func (a Attributes) Fingerprint() uint64 {
	d := xxhash.New()

	for _, k := range a.Keys() {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(Stringify(a[k]))
		_, _ = d.WriteString("\x01")
	}

	return d.Sum64()
}

// Stringify coerces an attribute value to its comparison string. nil becomes
// "", lists are joined with MultiValueSeparator, everything else goes through
// cast.ToStringE with a fmt fallback for types cast does not know.
func Stringify(v any) string {
	if v == nil {
		return ""
	}

	if _, isBytes := v.([]byte); !isBytes {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			parts := make([]string, rv.Len())
			for i := range parts {
				parts[i] = Stringify(rv.Index(i).Interface())
			}

			return strings.Join(parts, MultiValueSeparator)
		}
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return s
}
