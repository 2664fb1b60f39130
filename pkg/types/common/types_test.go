package common

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_IsUUID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id.String())
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	assert.NotEqual(t, id, NewID())
}

func TestGenerateID(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateID("run"), "run-"))
	_, err := uuid.Parse(GenerateID(""))
	assert.NoError(t, err)
}

func TestID_IsZero(t *testing.T) {
	assert.True(t, ID("  ").IsZero())
	assert.False(t, ID("S001").IsZero())
}
