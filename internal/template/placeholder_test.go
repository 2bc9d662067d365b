package template

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Part
	}{
		{"literal", "T1w", []Part{{Kind: PartLiteral, Text: "T1w"}}},
		{"reference", "<SeriesDescription>", []Part{{Kind: PartReference, Text: "SeriesDescription"}}},
		{
			"concatenated references",
			"<ProtocolName><SeriesNumber>",
			[]Part{{Kind: PartReference, Text: "ProtocolName"}, {Kind: PartReference, Text: "SeriesNumber"}},
		},
		{
			"mixed",
			"echo<EchoNumbers>x",
			[]Part{
				{Kind: PartLiteral, Text: "echo"},
				{Kind: PartReference, Text: "EchoNumbers"},
				{Kind: PartLiteral, Text: "x"},
			},
		},
		{"counter", "<<1>>", []Part{{Kind: PartCounter, Start: 1}}},
		{"counter from zero", "<<0>>", []Part{{Kind: PartCounter, Start: 0}}},
		{"source path", "<<SourceFilePath>>", []Part{{Kind: PartSourcePath, Text: SourceFilePath}}},
		{"lone closing bracket", "a>b", []Part{{Kind: PartLiteral, Text: "a>b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := ParseText(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parts)
		})
	}
}

func TestParseTextErrors(t *testing.T) {
	tests := []struct {
		input    string
		contains string
	}{
		{"<Series", "unterminated"},
		{"<<1", "unterminated"},
		{"<>", "empty reference"},
		{"< >", "empty reference"},
		{"<<-1>>", "unknown placeholder"},
		{"<<one>>", "unknown placeholder"},
		{"<<>>", "unknown placeholder"},
		{"<a<b>", "nested reference"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseText(tt.input)
			assert.ErrorContains(t, err, tt.contains)
		})
	}
}

func TestParseTextErrorsCarryStack(t *testing.T) {
	for _, input := range []string{"<Series", "<<one>>"} {
		_, err := ParseText(input)
		require.Error(t, err)
		assert.Contains(t, fmt.Sprintf("%+v", err), "template.ParseText")
	}
}

func TestPatternMatchesAnything(t *testing.T) {
	assert.True(t, Absent().MatchesAnything())
	assert.True(t, Glob("*").MatchesAnything())
	assert.True(t, Glob("***").MatchesAnything())
	assert.False(t, Glob("").MatchesAnything())
	assert.False(t, Glob("?").MatchesAnything())
	assert.False(t, Glob("T1*").MatchesAnything())
	assert.True(t, OneOf("x", "*").MatchesAnything())
	assert.False(t, OneOf("x", "y*").MatchesAnything())

	assert.True(t, AttributePattern{}.MatchesAnything())
	assert.True(t, AttributePattern{{Name: "A", Pattern: Absent()}, {Name: "B", Pattern: Glob("*")}}.MatchesAnything())
	assert.False(t, AttributePattern{{Name: "A", Pattern: Absent()}, {Name: "B", Pattern: Glob("b")}}.MatchesAnything())
}

func TestValueSpecString(t *testing.T) {
	assert.Equal(t, "", EmptySpec().String())
	assert.Equal(t, "<<1>>", mustSpec(t, "<<1>>").String())

	choice := ValueSpec{
		Kind:    SpecChoice,
		Choices: []ValueSpec{EmptySpec(), mustSpec(t, "mag")},
		Index:   1,
	}
	assert.Equal(t, `["", "mag", 1]`, choice.String())
	assert.False(t, choice.HasCounter())
}

func TestRuleClone(t *testing.T) {
	r := &Rule{
		Attributes: AttributePattern{{Name: "ImageType", Pattern: OneOf("a", "b")}},
		Entities:   EntityTemplate{{Name: "run", Spec: mustSpec(t, "<<1>>")}},
	}

	c := r.Clone()
	c.Attributes[0].Pattern.Candidates[0] = "z"
	c.Entities[0].Name = "echo"

	assert.Equal(t, "a", r.Attributes[0].Pattern.Candidates[0])
	assert.Equal(t, "run", r.Entities[0].Name)
}
