package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "enrollment/pkg/domain-errors"
)

// TestParseUUID_Invariants validates that IDs accepted at trust boundaries
// are valid, non-empty, non-nil UUIDs.
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseVoterID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseReferenceID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseAdminID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseVoterID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, VoterID(validUUID), id)
	})
}

func TestIDsMarshalAsStrings(t *testing.T) {
	raw := uuid.New()
	payload := struct {
		VoterID VoterID `json:"voter_id"`
	}{VoterID: VoterID(raw)}

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"voter_id":"`+raw.String()+`"}`, string(b))

	var decoded struct {
		VoterID VoterID `json:"voter_id"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, VoterID(raw), decoded.VoterID)
}
