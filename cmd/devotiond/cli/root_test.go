package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := NewRootCmd()

	for _, path := range [][]string{
		{"serve"}, {"migrate"}, {"init"}, {"audit"}, {"mint", "create"}, {"fund"}, {"position"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestInitCmd_RequiresFlags(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"init"})

	err := root.Execute()
	assert.ErrorContains(t, err, "required flag")
}

func TestFundCmd_RejectsBadOwner(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"fund", "not-a-key", "10"})

	err := root.Execute()
	assert.ErrorContains(t, err, "owner")
}
