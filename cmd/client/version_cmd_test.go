package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openmined/vaultsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func runVersion(t *testing.T, args ...string) string {
	t.Helper()

	cmd := &cobra.Command{Use: "vaultsync"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"version"}, args...))

	require.NoError(t, cmd.Execute())
	return strings.TrimSpace(out.String())
}

func TestVersionCommand(t *testing.T) {
	require.Equal(t, version.Detailed(), runVersion(t))
	require.Equal(t, version.Version, runVersion(t, "--short"))
}
