package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// chdir is a stand-in for testing.T.Chdir, which requires Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestEnsureDataDir_DefaultsToDriftguard(t *testing.T) {
	tmp := t.TempDir()
	chdir(t, tmp)

	got, err := EnsureDataDir("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, DefaultDataDir), got)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm())
	}
}

func TestEnsureDataDir_ExplicitName(t *testing.T) {
	tmp := t.TempDir()
	chdir(t, tmp)

	got, err := EnsureDataDir("state")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "state"), got)
}

func TestEnsureDataDir_Idempotent(t *testing.T) {
	tmp := t.TempDir()
	chdir(t, tmp)

	first, err := EnsureDataDir("")
	require.NoError(t, err)
	second, err := EnsureDataDir("")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEnsureDataDir_FailsWhenFileInTheWay(t *testing.T) {
	tmp := t.TempDir()
	chdir(t, tmp)

	require.NoError(t, os.WriteFile(DefaultDataDir, []byte("x"), 0o600))

	_, err := EnsureDataDir("")
	require.Error(t, err)
}
