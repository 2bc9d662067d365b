package template

import (
	"strconv"

	"gopkg.in/yaml.v3"

	"bidsmapper/internal/errors"
)

const (
	tagNull = "!!null"
	tagInt  = "!!int"
)

// --- Pattern YAML methods ---

// UnmarshalYAML implements custom YAML unmarshaling for Pattern.
// Accepts:
//   - null or "": absent (matches anything)
//   - scalar: literal or wildcard, numbers and booleans kept as written
//   - sequence of scalars: list of candidates
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		return p.UnmarshalYAML(node.Alias)
	}

	switch node.Kind {
	case yaml.ScalarNode:
		if isNullish(node) {
			*p = Absent()
			return nil
		}

		*p = Glob(node.Value)

		return nil

	case yaml.SequenceNode:
		candidates := make([]string, 0, len(node.Content))

		for _, item := range node.Content {
			if item.Kind == yaml.AliasNode && item.Alias != nil {
				item = item.Alias
			}

			if item.Kind != yaml.ScalarNode {
				return errors.Newf("line %d: pattern candidates must be scalars, got %s", item.Line, kindName(item.Kind))
			}

			if isNullish(item) {
				candidates = append(candidates, "")
				continue
			}

			candidates = append(candidates, item.Value)
		}

		if len(candidates) == 0 {
			*p = Absent()
			return nil
		}

		*p = OneOf(candidates...)

		return nil

	default:
		return errors.Newf("line %d: expected scalar or list pattern, got %s", node.Line, kindName(node.Kind))
	}
}

// MarshalYAML implements custom YAML marshaling for Pattern.
func (p Pattern) MarshalYAML() (any, error) {
	switch p.Kind {
	case PatternGlob:
		return p.Value, nil
	case PatternOneOf:
		return p.Candidates, nil
	default:
		return nil, nil
	}
}

// --- ValueSpec YAML methods ---

// UnmarshalYAML implements custom YAML unmarshaling for ValueSpec.
// Accepts:
//   - null or "": empty
//   - scalar: text with placeholders, e.g. "<SeriesDescription>", "<<1>>"
//   - sequence: allowed values, optionally ending with the selected index,
//     e.g. ["", mag, phase, 1]
func (v *ValueSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		return v.UnmarshalYAML(node.Alias)
	}

	switch node.Kind {
	case yaml.ScalarNode:
		if isNullish(node) {
			*v = EmptySpec()
			return nil
		}

		spec, err := parseSpecText(node.Value)
		if err != nil {
			return errors.Wrapf(err, "line %d", node.Line)
		}

		*v = spec

		return nil

	case yaml.SequenceNode:
		spec, err := decodeChoice(node)
		if err != nil {
			return err
		}

		*v = spec

		return nil

	default:
		return errors.Newf("line %d: expected scalar or list value, got %s", node.Line, kindName(node.Kind))
	}
}

func decodeChoice(node *yaml.Node) (ValueSpec, error) {
	items := node.Content
	index := NoIndex

	if len(items) > 1 {
		last := items[len(items)-1]
		if last.Kind == yaml.ScalarNode && last.ShortTag() == tagInt {
			n, err := strconv.Atoi(last.Value)
			if err != nil {
				return ValueSpec{}, errors.Newf("line %d: invalid choice index %q", last.Line, last.Value)
			}

			index = n
			items = items[:len(items)-1]
		}
	}

	choices := make([]ValueSpec, 0, len(items))

	for _, item := range items {
		if item.Kind == yaml.AliasNode && item.Alias != nil {
			item = item.Alias
		}

		if item.Kind != yaml.ScalarNode {
			return ValueSpec{}, errors.Newf("line %d: allowed values must be scalars, got %s", item.Line, kindName(item.Kind))
		}

		text := item.Value
		if isNullish(item) {
			text = ""
		}

		spec, err := parseSpecText(text)
		if err != nil {
			return ValueSpec{}, errors.Wrapf(err, "line %d", item.Line)
		}

		choices = append(choices, spec)
	}

	if len(choices) == 0 {
		return EmptySpec(), nil
	}

	if index != NoIndex && (index < 0 || index >= len(choices)) {
		return ValueSpec{}, errors.Newf("line %d: choice index %d out of range [0,%d)", node.Line, index, len(choices))
	}

	return ValueSpec{Kind: SpecChoice, Choices: choices, Index: index}, nil
}

// MarshalYAML implements custom YAML marshaling for ValueSpec.
func (v ValueSpec) MarshalYAML() (any, error) {
	switch v.Kind {
	case SpecText:
		return v.Raw, nil
	case SpecChoice:
		out := make([]any, 0, len(v.Choices)+1)
		for _, c := range v.Choices {
			if c.Kind == SpecChoice {
				return nil, errors.New("nested choices cannot be encoded")
			}

			out = append(out, c.Raw)
		}

		if v.Index != NoIndex {
			out = append(out, v.Index)
		}

		return out, nil
	default:
		return "", nil
	}
}

func isNullish(node *yaml.Node) bool {
	return node.ShortTag() == tagNull || (node.Kind == yaml.ScalarNode && node.Value == "")
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "node"
	}
}
