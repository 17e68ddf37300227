package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPatch_FieldsUpdated(t *testing.T) {
	status := StatusSuccess
	items := int64(5)

	p := &RunPatch{Status: &status, ItemsSucceeded: &items}
	assert.Equal(t, []string{"status", "items_succeeded"}, p.FieldsUpdated())
}

func TestRunPatch_IsEmpty(t *testing.T) {
	assert.True(t, (&RunPatch{}).IsEmpty())

	status := StatusSuccess
	assert.False(t, (&RunPatch{Status: &status}).IsEmpty())
}

func TestValidatePatch(t *testing.T) {
	t.Run("empty patch rejected", func(t *testing.T) {
		assert.ErrorIs(t, ValidatePatch(&RunPatch{}), ErrEmptyPatch)
	})

	t.Run("non-canonical status rejected", func(t *testing.T) {
		status := Status("failed")
		assert.ErrorIs(t, ValidatePatch(&RunPatch{Status: &status}), ErrInvalidStatus)
	})

	t.Run("canonical status accepted", func(t *testing.T) {
		status := StatusFailure
		require.NoError(t, ValidatePatch(&RunPatch{Status: &status}))
	})

	t.Run("negative counter rejected", func(t *testing.T) {
		neg := int64(-1)
		assert.ErrorIs(t, ValidatePatch(&RunPatch{ItemsFailed: &neg}), ErrNegativeCounter)
	})

	t.Run("negative duration rejected", func(t *testing.T) {
		neg := int64(-1)
		assert.ErrorIs(t, ValidatePatch(&RunPatch{DurationMs: &neg}), ErrNegativeCounter)
	})
}
