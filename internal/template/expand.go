package template

import (
	"gopkg.in/yaml.v3"

	"bidsmapper/internal/errors"
)

const (
	mergeKey = "<<"
	refKey   = "$ref"

	maxExpandDepth = 64
)

// expandNode returns a deep copy of node with every alias replaced by a copy
// of its anchor and every `<<:` merge key materialised. Explicit keys
// override merged ones; an override replaces the whole value, nested values
// are never merged. The result shares no nodes with the input, so rules that
// inherit from one base are independent values.
func expandNode(node *yaml.Node, depth int) (*yaml.Node, error) {
	if node == nil {
		return nil, nil
	}

	if depth > maxExpandDepth {
		return nil, errors.Newf("line %d: aliases nested deeper than %d levels (cycle?)", node.Line, maxExpandDepth)
	}

	switch node.Kind {
	case yaml.AliasNode:
		if node.Alias == nil {
			return nil, errors.Newf("line %d: alias %q has no anchor", node.Line, node.Value)
		}

		return expandNode(node.Alias, depth+1)

	case yaml.MappingNode:
		return expandMapping(node, depth)

	default:
		out := shallowCopy(node)
		out.Content = make([]*yaml.Node, 0, len(node.Content))

		for _, child := range node.Content {
			c, err := expandNode(child, depth+1)
			if err != nil {
				return nil, err
			}

			out.Content = append(out.Content, c)
		}

		return out, nil
	}
}

func expandMapping(node *yaml.Node, depth int) (*yaml.Node, error) {
	merged := newOrderedMapping(node)
	explicit := newOrderedMapping(node)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		if isMergeKey(key) {
			bases, err := mergeSources(val, depth)
			if err != nil {
				return nil, err
			}

			// Earlier merge sources take precedence over later ones.
			for _, base := range bases {
				merged.setIfAbsent(base)
			}

			continue
		}

		k, err := expandNode(key, depth+1)
		if err != nil {
			return nil, err
		}

		v, err := expandNode(val, depth+1)
		if err != nil {
			return nil, err
		}

		if !explicit.add(k, v) {
			return nil, errors.Newf("line %d: duplicate key %q", key.Line, key.Value)
		}
	}

	merged.override(explicit)

	return merged.node(), nil
}

// mergeSources expands the value of a merge key: a mapping, an alias to a
// mapping, or a sequence of those.
func mergeSources(val *yaml.Node, depth int) ([]*yaml.Node, error) {
	expanded, err := expandNode(val, depth+1)
	if err != nil {
		return nil, err
	}

	switch expanded.Kind {
	case yaml.MappingNode:
		return []*yaml.Node{expanded}, nil
	case yaml.SequenceNode:
		for _, item := range expanded.Content {
			if item.Kind != yaml.MappingNode {
				return nil, errors.Newf("line %d: merge sequence items must be mappings", item.Line)
			}
		}

		return expanded.Content, nil
	default:
		return nil, errors.Newf("line %d: merge value must be a mapping, got %s", val.Line, kindName(expanded.Kind))
	}
}

func isMergeKey(key *yaml.Node) bool {
	return key.Kind == yaml.ScalarNode && (key.Tag == "!!merge" || (key.Value == mergeKey && key.Style == 0))
}

// resolveRefs materialises `$ref: name` (or `$ref: [a, b]`) inside a mapping
// against the shared definitions of one kind. The referenced mappings are
// inherited in order, then the mapping's own keys override them.
func resolveRefs(node *yaml.Node, shared map[string]*yaml.Node, kind string, visiting map[string]bool) (*yaml.Node, error) {
	if node == nil || node.Kind != yaml.MappingNode {
		return node, nil
	}

	var names []string

	own := newOrderedMapping(node)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if key.Value != refKey {
			own.add(key, val)
			continue
		}

		switch val.Kind {
		case yaml.ScalarNode:
			names = append(names, val.Value)
		case yaml.SequenceNode:
			for _, item := range val.Content {
				if item.Kind != yaml.ScalarNode {
					return nil, errors.Newf("line %d: %s entries must be names", item.Line, refKey)
				}

				names = append(names, item.Value)
			}
		default:
			return nil, errors.Newf("line %d: %s must be a name or a list of names", val.Line, refKey)
		}
	}

	if len(names) == 0 {
		return node, nil
	}

	base := newOrderedMapping(node)

	for _, name := range names {
		def, ok := shared[name]
		if !ok {
			return nil, errors.Newf("line %d: undefined shared %s %q", node.Line, kind, name)
		}

		if visiting[name] {
			return nil, errors.Newf("line %d: shared %s %q references itself", node.Line, kind, name)
		}

		visiting[name] = true
		resolved, err := resolveRefs(def, shared, kind, visiting)
		delete(visiting, name)

		if err != nil {
			return nil, err
		}

		copied, err := expandNode(resolved, 0)
		if err != nil {
			return nil, err
		}

		base.setIfAbsent(copied)
	}

	base.override(own)

	return base.node(), nil
}

// orderedMapping accumulates key/value pairs of a mapping node while keeping
// first-insertion order.
type orderedMapping struct {
	proto *yaml.Node
	keys  []*yaml.Node
	vals  []*yaml.Node
	index map[string]int
}

func newOrderedMapping(proto *yaml.Node) *orderedMapping {
	return &orderedMapping{proto: proto, index: map[string]int{}}
}

// add appends a pair; it reports false if the key already exists.
func (m *orderedMapping) add(k, v *yaml.Node) bool {
	if _, ok := m.index[k.Value]; ok {
		return false
	}

	m.index[k.Value] = len(m.keys)
	m.keys = append(m.keys, k)
	m.vals = append(m.vals, v)

	return true
}

// setIfAbsent adds every pair of a mapping node whose key is not yet present.
func (m *orderedMapping) setIfAbsent(mapping *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		m.add(mapping.Content[i], mapping.Content[i+1])
	}
}

// override replaces values of existing keys in place and appends new keys.
func (m *orderedMapping) override(other *orderedMapping) {
	for i, k := range other.keys {
		if at, ok := m.index[k.Value]; ok {
			m.vals[at] = other.vals[i]
			continue
		}

		m.add(k, other.vals[i])
	}
}

func (m *orderedMapping) node() *yaml.Node {
	out := shallowCopy(m.proto)
	out.Kind = yaml.MappingNode
	out.Content = make([]*yaml.Node, 0, 2*len(m.keys))

	for i := range m.keys {
		out.Content = append(out.Content, m.keys[i], m.vals[i])
	}

	return out
}

func shallowCopy(n *yaml.Node) *yaml.Node {
	c := *n
	c.Anchor = ""
	c.Alias = nil
	c.Content = nil

	return &c
}
