package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := Wrap(ErrDuplicateIdentity, "anat/sub-01_T1w")
	assert.True(t, IsDuplicateIdentity(err))
	assert.False(t, IsMalformedTemplate(err))
	assert.Contains(t, err.Error(), "anat/sub-01_T1w")
}

func TestMarkMalformed(t *testing.T) {
	base := New("groups must be a mapping")
	err := MarkMalformed(base)

	assert.True(t, IsMalformedTemplate(err))
	assert.Equal(t, "groups must be a mapping", err.Error())
	assert.Nil(t, MarkMalformed(nil))
}

func TestHintsAndDetails(t *testing.T) {
	err := WithHint(WithDetail(MarkMalformed(New("bad")), "rule anat[0]"), "fix the rule")

	assert.True(t, IsMalformedTemplate(err))
	assert.Equal(t, []string{"fix the rule"}, GetAllHints(err))
	assert.Equal(t, []string{"rule anat[0]"}, GetAllDetails(err))
}

func TestNilHelpers(t *testing.T) {
	assert.False(t, IsMalformedTemplate(nil))
	assert.False(t, IsNoMatch(nil))
	assert.False(t, IsDuplicateIdentity(nil))
}
