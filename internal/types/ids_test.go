package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		require.NoError(t, id.Validate())
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestDeterministicID(t *testing.T) {
	a := DeterministicID("doc:id:report-2024")
	b := DeterministicID("doc:id:report-2024")
	c := DeterministicID("doc:id:report-2025")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	require.NoError(t, a.Validate())
}

func TestParseID(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseID("")
	assert.Error(t, err)
	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)
}

func TestIDJSONRoundTrip(t *testing.T) {
	id := DeterministicID("entity:mercury|PERSON")
	data, err := json.Marshal(id)
	require.NoError(t, err)

	var back ID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, id, back)

	var zero ID
	data, err = json.Marshal(zero)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &back))
}

func TestIDIsZero(t *testing.T) {
	assert.True(t, ID("").IsZero())
	assert.False(t, NewID().IsZero())
}
