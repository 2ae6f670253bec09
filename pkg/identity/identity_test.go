package identity

import (
	"testing"

	"github.com/scp-protocol/scp-go/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureGeneratesOnce(t *testing.T) {
	store, err := persistence.NewStore(persistence.NewMemoryBackend())
	require.NoError(t, err)

	id, created, err := Ensure(store)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, id, 32)
	assert.NotContains(t, id, ":")
	assert.NotContains(t, id, "-")

	again, created, err := Ensure(store)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)
}

func TestNewDeviceIDUnique(t *testing.T) {
	assert.NotEqual(t, NewDeviceID(), NewDeviceID())
}

func TestCatalogs(t *testing.T) {
	id := Identity{
		ControlActions: []string{"on", "off"},
		MeasureActions: []string{"temperature"},
	}

	assert.True(t, id.SupportsControl("on"))
	assert.False(t, id.SupportsControl("temperature"))
	assert.True(t, id.SupportsMeasure("temperature"))
	assert.False(t, id.SupportsMeasure("on"))
}

func TestValidateActions(t *testing.T) {
	assert.NoError(t, ValidateActions([]string{"on", "off"}))
	assert.ErrorIs(t, ValidateActions([]string{"on", ""}), ErrInvalidAction)
	assert.ErrorIs(t, ValidateActions([]string{"set:42"}), ErrInvalidAction)
}
