package template

import (
	"strconv"
	"strings"

	"bidsmapper/internal/errors"
)

// SourceFilePath is the placeholder name of the path-derived reference.
const SourceFilePath = "SourceFilePath"

// PartKind identifies a piece of a parsed text value.
type PartKind int

const (
	// PartLiteral is verbatim text.
	PartLiteral PartKind = iota
	// PartReference is `<attr>`: the value of a source attribute.
	PartReference
	// PartCounter is `<<N>>`: the next run index, starting at N.
	PartCounter
	// PartSourcePath is `<<SourceFilePath>>`: a label taken from the path.
	PartSourcePath
)

// Part is one piece of a text value.
type Part struct {
	Kind PartKind
	// Text is the literal text or the referenced attribute name.
	Text string
	// Start is the declared first value of a counter.
	Start int
}

// ParseText splits a template value into literal text and placeholders.
//
// Grammar:
//
//	<<N>>               run counter starting at N (decimal, N >= 0)
//	<<SourceFilePath>>  path-derived subject/session label
//	<name>              dynamic reference to a source attribute
//
// Anything else is literal. A lone '>' is literal; an unterminated '<' or
// '<<', an empty reference and an unknown '<<...>>' placeholder are errors.
func ParseText(s string) ([]Part, error) {
	var (
		parts []Part
		lit   strings.Builder
	)

	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, Part{Kind: PartLiteral, Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "<<"):
			end := strings.Index(s[i+2:], ">>")
			if end < 0 {
				return nil, errors.Newf("unterminated %q in %q", "<<", s)
			}

			inner := s[i+2 : i+2+end]

			part, err := parseDouble(inner)
			if err != nil {
				return nil, errors.Wrapf(err, "in %q", s)
			}

			flush()
			parts = append(parts, part)
			i += 2 + end + 2

		case s[i] == '<':
			end := strings.IndexByte(s[i+1:], '>')
			if end < 0 {
				return nil, errors.Newf("unterminated %q in %q", "<", s)
			}

			name := s[i+1 : i+1+end]
			if strings.TrimSpace(name) == "" {
				return nil, errors.Newf("empty reference in %q", s)
			}

			if strings.Contains(name, "<") {
				return nil, errors.Newf("nested reference %q in %q", name, s)
			}

			flush()
			parts = append(parts, Part{Kind: PartReference, Text: name})
			i += 1 + end + 1

		default:
			lit.WriteByte(s[i])
			i++
		}
	}

	flush()

	return parts, nil
}

func parseDouble(inner string) (Part, error) {
	if inner == SourceFilePath {
		return Part{Kind: PartSourcePath, Text: inner}, nil
	}

	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 || strings.ContainsAny(inner, "+-") {
		return Part{}, errors.Newf("unknown placeholder <<%s>>", inner)
	}

	return Part{Kind: PartCounter, Start: n}, nil
}

// References returns the attribute names referenced by the spec, in order
// of appearance, choices included.
func (v ValueSpec) References() []string {
	var refs []string
	for _, p := range v.Parts {
		if p.Kind == PartReference {
			refs = append(refs, p.Text)
		}
	}

	for _, c := range v.Choices {
		refs = append(refs, c.References()...)
	}

	return refs
}

// parseSpecText builds a text spec, collapsing "" to an empty spec.
func parseSpecText(s string) (ValueSpec, error) {
	if s == "" {
		return EmptySpec(), nil
	}

	parts, err := ParseText(s)
	if err != nil {
		return ValueSpec{}, err
	}

	return ValueSpec{Kind: SpecText, Raw: s, Parts: parts, Index: NoIndex}, nil
}

// counterCount returns how many counter parts the spec contains.
func (v ValueSpec) counterCount() int {
	n := 0
	for _, p := range v.Parts {
		if p.Kind == PartCounter {
			n++
		}
	}

	for _, c := range v.Choices {
		n += c.counterCount()
	}

	return n
}
