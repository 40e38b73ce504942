package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_TrailingCommaInObjectIsTolerated(t *testing.T) {
	v, err := extractJSON(`{"verdict":"false","confidence":0.8,}`)
	require.NoError(t, err)
	assert.Equal(t, "false", v.Verdict)
	assert.Equal(t, 0.8, v.Confidence)
}

func TestExtractJSON_TrailingCommaInNestedArrayIsTolerated(t *testing.T) {
	v, err := extractJSON(`{"verdict":"misleading","confidence":0.6,"cited_evidence_indices":[1,2,],}`)
	require.NoError(t, err)
	assert.Equal(t, "misleading", v.Verdict)
	assert.Equal(t, []int{1, 2}, v.CitedEvidenceIndices)
}

func TestExtractJSON_ToleratesProseAndCodeFenceAroundObject(t *testing.T) {
	raw := "Here is my answer:\n```json\n{\"verdict\":\"true\",\"confidence\":0.95}\n```\nLet me know if you need more."
	v, err := extractJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "true", v.Verdict)
}

func TestExtractJSON_NoObjectReturnsError(t *testing.T) {
	_, err := extractJSON("I cannot verify this claim.")
	assert.Error(t, err)
}
