package template

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"bidsmapper/internal/diagnostic"
	"bidsmapper/internal/errors"
)

// Top-level and rule keys of the template format.
const (
	keyVersion    = "version"
	keyUnassigned = "unassigned"
	keyDiscard    = "discard"
	keyOrder      = "order"
	keyShared     = "shared"
	keyGroups     = "groups"

	keyProvenance = "provenance"
	keyAttributes = "attributes"
	keyEntities   = "entities"
	keyBids       = "bids"

	defaultVersion = "1"
)

// Option configures loading.
type Option func(*options)

type options struct {
	partial    bool
	unassigned string
	discard    string
}

// Partial accepts templates without a catch-all rule. Classification may
// then fail per file with ErrNoMatch.
func Partial() Option {
	return func(o *options) { o.partial = true }
}

// WithReservedGroups overrides the names of the reserved groups. Empty
// strings keep the current names.
func WithReservedGroups(unassigned, discard string) Option {
	return func(o *options) {
		if unassigned != "" {
			o.unassigned = unassigned
		}

		if discard != "" {
			o.discard = discard
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{unassigned: DefaultUnassignedGroup, discard: DefaultDiscardGroup}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// LoadFile loads and parses a template file from the given path.
func LoadFile(path string, opts ...Option) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read template file %s", path)
	}

	t, err := Parse(data, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "template %s", path)
	}

	return t, nil
}

// Load parses a template read from r.
func Load(r io.Reader, opts ...Option) (*Template, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read template")
	}

	return Parse(data, opts...)
}

// Parse parses YAML data into a Template.
func Parse(data []byte, opts ...Option) (*Template, error) {
	t, _, err := ParseWithDiagnostics(data, opts...)
	return t, err
}

// ParseWithDiagnostics parses YAML data into a Template and also returns the
// warnings collected on the way (unknown keys, unreachable rules, ...). When
// the template has structural errors the returned error carries every one of
// them as detail and is marked ErrMalformedTemplate.
func ParseWithDiagnostics(data []byte, opts ...Option) (*Template, *diagnostic.Diagnostics, error) {
	o := buildOptions(opts)
	diags := &diagnostic.Diagnostics{}

	root, err := parseRoot(data)
	if err != nil {
		return nil, diags, errors.MarkMalformed(errors.Wrap(err, "failed to parse template YAML"))
	}

	d := &decoder{diags: diags, opts: o, version: defaultVersion}
	d.decode(root)

	if diags.HasErrors() {
		return nil, diags, diagnosticsError(diags)
	}

	t, err := assemble(d.version, d.groups, d.opts, diags)
	if err != nil {
		return nil, diags, err
	}

	return t, diags, nil
}

// parseRoot decodes data into a fully expanded root mapping node.
func parseRoot(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("template is empty")
	}

	root, err := expandNode(doc.Content[0], 0)
	if err != nil {
		return nil, err
	}

	if root.Kind != yaml.MappingNode {
		return nil, errors.Newf("template root must be a mapping, got %s", kindName(root.Kind))
	}

	return root, nil
}

// decoder walks an expanded template tree and collects diagnostics instead
// of stopping at the first defect.
type decoder struct {
	diags   *diagnostic.Diagnostics
	opts    options
	version string
	groups  []*Group

	sharedAttributes map[string]*yaml.Node
	sharedEntities   map[string]*yaml.Node
}

func (d *decoder) decode(root *yaml.Node) {
	var (
		groupsNode *yaml.Node
		orderNode  *yaml.Node
	)

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]

		switch key.Value {
		case keyVersion:
			d.version = d.scalar(val, "", key.Value, defaultVersion)
		case keyUnassigned:
			d.opts.unassigned = d.scalar(val, "", key.Value, d.opts.unassigned)
		case keyDiscard:
			d.opts.discard = d.scalar(val, "", key.Value, d.opts.discard)
		case keyOrder:
			orderNode = val
		case keyShared:
			d.decodeShared(val)
		case keyGroups:
			groupsNode = val
		default:
			d.diags.AddWarning("unknown_key", fmt.Sprintf("line %d: unknown top-level key", key.Line), "", key.Value)
		}
	}

	if groupsNode == nil || isNullish(groupsNode) {
		d.diags.AddError("missing_groups", "group ordering is absent: no groups defined", "", keyGroups)
		return
	}

	if groupsNode.Kind != yaml.MappingNode {
		d.diags.AddError("invalid_groups",
			fmt.Sprintf("line %d: groups must be a mapping of group name to rules, got %s", groupsNode.Line, kindName(groupsNode.Kind)),
			"", keyGroups)

		return
	}

	if len(groupsNode.Content) == 0 {
		d.diags.AddError("missing_groups", "group ordering is absent: groups is empty", "", keyGroups)
		return
	}

	for i := 0; i+1 < len(groupsNode.Content); i += 2 {
		d.decodeGroup(groupsNode.Content[i], groupsNode.Content[i+1])
	}

	if orderNode != nil {
		d.applyOrder(orderNode)
	}
}

func (d *decoder) scalar(val *yaml.Node, location, key, fallback string) string {
	if isNullish(val) {
		return fallback
	}

	if val.Kind != yaml.ScalarNode {
		d.diags.AddError("invalid_value",
			fmt.Sprintf("line %d: expected a scalar, got %s", val.Line, kindName(val.Kind)), location, key)

		return fallback
	}

	return val.Value
}

func (d *decoder) decodeShared(node *yaml.Node) {
	d.sharedAttributes = map[string]*yaml.Node{}
	d.sharedEntities = map[string]*yaml.Node{}

	if isNullish(node) {
		return
	}

	if node.Kind != yaml.MappingNode {
		d.diags.AddError("invalid_shared", fmt.Sprintf("line %d: shared must be a mapping", node.Line), "", keyShared)
		return
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var target map[string]*yaml.Node

		switch key.Value {
		case keyAttributes:
			target = d.sharedAttributes
		case keyEntities, keyBids:
			target = d.sharedEntities
		default:
			d.diags.AddWarning("unknown_key", fmt.Sprintf("line %d: unknown shared section", key.Line), keyShared, key.Value)
			continue
		}

		if isNullish(val) {
			continue
		}

		if val.Kind != yaml.MappingNode {
			d.diags.AddError("invalid_shared",
				fmt.Sprintf("line %d: shared %s must be a mapping of name to mapping", val.Line, key.Value),
				keyShared, key.Value)

			continue
		}

		for j := 0; j+1 < len(val.Content); j += 2 {
			name, def := val.Content[j], val.Content[j+1]
			if def.Kind != yaml.MappingNode {
				d.diags.AddError("invalid_shared",
					fmt.Sprintf("line %d: shared %s %q must be a mapping", def.Line, key.Value, name.Value),
					keyShared, name.Value)

				continue
			}

			target[name.Value] = def
		}
	}
}

func (d *decoder) decodeGroup(key, val *yaml.Node) {
	name := key.Value
	if name == "" {
		d.diags.AddError("invalid_group", fmt.Sprintf("line %d: group name is empty", key.Line), "", "")
		return
	}

	g := &Group{Name: name}
	d.groups = append(d.groups, g)

	if isNullish(val) {
		return
	}

	if val.Kind != yaml.SequenceNode {
		d.diags.AddError("invalid_group",
			fmt.Sprintf("line %d: group rules must be a sequence, got %s", val.Line, kindName(val.Kind)), name, "")

		return
	}

	for _, item := range val.Content {
		location := fmt.Sprintf("%s[%d]", name, len(g.rules))

		rule, ok := d.decodeRule(item, location)
		if !ok {
			// Keep indices stable so later locations still point at the
			// right rule.
			rule = &Rule{}
		}

		rule.Group = name
		rule.Index = len(g.rules)
		g.rules = append(g.rules, rule)
	}
}

func (d *decoder) decodeRule(node *yaml.Node, location string) (*Rule, bool) {
	if node.Kind != yaml.MappingNode {
		d.diags.AddError("invalid_rule",
			fmt.Sprintf("line %d: rule must be a mapping, got %s", node.Line, kindName(node.Kind)), location, "")

		return nil, false
	}

	rule := &Rule{}
	ok := true
	seenEntities := false

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		switch key.Value {
		case keyProvenance:
			rule.Provenance = d.scalar(val, location, key.Value, "")
		case keyAttributes:
			attrs, good := d.decodeAttributes(val, location)
			rule.Attributes = attrs
			ok = ok && good
		case keyEntities, keyBids:
			if seenEntities {
				d.diags.AddError("duplicate_key",
					fmt.Sprintf("line %d: both %q and %q given", key.Line, keyEntities, keyBids), location, key.Value)

				ok = false

				continue
			}

			seenEntities = true
			ents, good := d.decodeEntities(val, location)
			rule.Entities = ents
			ok = ok && good
		default:
			d.diags.AddWarning("unknown_key", fmt.Sprintf("line %d: unknown rule key", key.Line), location, key.Value)
		}
	}

	return rule, ok
}

func (d *decoder) decodeAttributes(node *yaml.Node, location string) (AttributePattern, bool) {
	node, ok := d.ruleMapping(node, location, keyAttributes, d.sharedAttributes)
	if !ok || node == nil {
		return AttributePattern{}, ok
	}

	out := make(AttributePattern, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var p Pattern
		if err := p.UnmarshalYAML(val); err != nil {
			d.diags.AddError("invalid_pattern", err.Error(), location, key.Value)
			ok = false

			continue
		}

		out = append(out, AttributeEntry{Name: key.Value, Pattern: p})
	}

	return out, ok
}

func (d *decoder) decodeEntities(node *yaml.Node, location string) (EntityTemplate, bool) {
	node, ok := d.ruleMapping(node, location, keyEntities, d.sharedEntities)
	if !ok || node == nil {
		return EntityTemplate{}, ok
	}

	out := make(EntityTemplate, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]

		var v ValueSpec
		if err := v.UnmarshalYAML(val); err != nil {
			d.diags.AddError("invalid_entity", err.Error(), location, key.Value)
			ok = false

			continue
		}

		out = append(out, Entity{Name: key.Value, Spec: v})
	}

	return out, ok
}

// ruleMapping checks that a rule section is a mapping (or empty) and
// resolves its $ref against the shared definitions.
func (d *decoder) ruleMapping(node *yaml.Node, location, section string, shared map[string]*yaml.Node) (*yaml.Node, bool) {
	if isNullish(node) {
		return nil, true
	}

	if node.Kind != yaml.MappingNode {
		d.diags.AddError("invalid_"+section,
			fmt.Sprintf("line %d: %s must be a mapping, got %s", node.Line, section, kindName(node.Kind)), location, section)

		return nil, false
	}

	resolved, err := resolveRefs(node, shared, section, map[string]bool{})
	if err != nil {
		d.diags.AddError("invalid_ref", err.Error(), location, section)
		return nil, false
	}

	for i := 0; i < len(resolved.Content); i += 2 {
		if k := resolved.Content[i]; k.Kind != yaml.ScalarNode || k.Value == "" {
			d.diags.AddError("invalid_"+section, fmt.Sprintf("line %d: names must be non-empty scalars", k.Line), location, section)
			return nil, false
		}
	}

	return resolved, true
}

func (d *decoder) applyOrder(node *yaml.Node) {
	if node.Kind != yaml.SequenceNode {
		d.diags.AddError("invalid_order", fmt.Sprintf("line %d: order must be a list of group names", node.Line), "", keyOrder)
		return
	}

	byName := make(map[string]*Group, len(d.groups))
	for _, g := range d.groups {
		byName[g.Name] = g
	}

	ordered := make([]*Group, 0, len(d.groups))
	seen := map[string]bool{}

	for _, item := range node.Content {
		g, ok := byName[item.Value]
		if !ok {
			d.diags.AddError("unknown_group", fmt.Sprintf("line %d: order names an undeclared group", item.Line), "", item.Value)
			continue
		}

		if seen[item.Value] {
			d.diags.AddError("duplicate_group", fmt.Sprintf("line %d: group listed twice in order", item.Line), "", item.Value)
			continue
		}

		seen[item.Value] = true
		ordered = append(ordered, g)
	}

	for _, g := range d.groups {
		if !seen[g.Name] {
			d.diags.AddError("missing_group", "group is declared but absent from order", "", g.Name)
		}
	}

	d.groups = ordered
}

// Marshal serializes a Template to YAML in the same format Parse reads.
func Marshal(t *Template) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	addScalar(root, keyVersion, t.Version)

	if t.Unassigned != DefaultUnassignedGroup {
		addScalar(root, keyUnassigned, t.Unassigned)
	}

	if t.Discard != DefaultDiscardGroup {
		addScalar(root, keyDiscard, t.Discard)
	}

	groups := &yaml.Node{Kind: yaml.MappingNode}

	for _, g := range t.groups {
		seq := &yaml.Node{Kind: yaml.SequenceNode}

		for _, r := range g.rules {
			rn, err := marshalRule(r)
			if err != nil {
				return nil, errors.Wrapf(err, "rule %s", r.ID())
			}

			seq.Content = append(seq.Content, rn)
		}

		groups.Content = append(groups.Content, scalarNode(g.Name), seq)
	}

	root.Content = append(root.Content, scalarNode(keyGroups), groups)

	data, err := yaml.Marshal(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode template")
	}

	return data, nil
}

func marshalRule(r *Rule) (*yaml.Node, error) {
	out := &yaml.Node{Kind: yaml.MappingNode}
	if r.Provenance != "" {
		addScalar(out, keyProvenance, r.Provenance)
	}

	attrs := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range r.Attributes {
		var v yaml.Node
		if err := v.Encode(e.Pattern); err != nil {
			return nil, err
		}

		attrs.Content = append(attrs.Content, scalarNode(e.Name), &v)
	}

	ents := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range r.Entities {
		var v yaml.Node
		if err := v.Encode(e.Spec); err != nil {
			return nil, err
		}

		ents.Content = append(ents.Content, scalarNode(e.Name), &v)
	}

	out.Content = append(out.Content,
		scalarNode(keyAttributes), attrs,
		scalarNode(keyEntities), ents,
	)

	return out, nil
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func addScalar(m *yaml.Node, key, value string) {
	m.Content = append(m.Content, scalarNode(key), scalarNode(value))
}

// WriteFile writes a Template to the given path.
func WriteFile(t *Template, path string) error {
	data, err := Marshal(t)
	if err != nil {
		return errors.Wrap(err, "failed to marshal template")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write template file %s", path)
	}

	return nil
}
