package registry

import (
	"testing"

	"github.com/hiyocord/hiyocord-nexus/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKeys(t *testing.T) {
	keys, err := LookupKeys(commandInteraction("ping", "123"))
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd:guild:123:ping", "cmd:global:ping"}, keys)

	keys, err = LookupKeys(commandInteraction("ping", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd:global:ping"}, keys)

	keys, err = LookupKeys(&interfaces.Interaction{
		Type: interfaces.InteractionModalSubmit,
		Data: &interfaces.InteractionData{CustomID: "form"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"modal:form"}, keys)

	_, err = LookupKeys(&interfaces.Interaction{Type: interfaces.InteractionPing})
	assert.ErrorIs(t, err, interfaces.ErrUnknownInteractionType)
}

func TestIndexKeys(t *testing.T) {
	assert.Equal(t, []string{
		"cmd:global:ping",
		"cmd:guild:g1:admin",
		"cmd:guild:g2:admin",
		"component:btn-ok",
		"modal:form-1",
	}, IndexKeys(svc1Manifest()))
}
