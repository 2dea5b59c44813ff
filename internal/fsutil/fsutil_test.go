package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileScoped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	p := filepath.Join(nested, "report.log")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o600))

	data, err := ReadFileScoped(filepath.Join(dir, "a", ".", "b", "report.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestReadFileScoped_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	for _, p := range []string{"", ".", string(filepath.Separator)} {
		_, err := ReadFileScoped(p)
		assert.Error(t, err, "path %q", p)
	}

	_, err := ReadFileScoped(filepath.Join(dir, "missing.log"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ReadFileScoped(filepath.Join(dir, "nodir", "file.log"))
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "conf", "config.yaml")

	require.NoError(t, WriteFileAtomic(p, []byte("v: 1\n"), 0o600))
	require.NoError(t, WriteFileAtomic(p, []byte("v: 2\n"), 0o600))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "v: 2\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	assert.Error(t, WriteFileAtomic("", nil, 0o600))
}

func TestReplaceLink(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	link := filepath.Join(dir, "latest")

	require.NoError(t, ReplaceLink("crash-1.log", link))
	require.NoError(t, ReplaceLink("crash-2.log", link))

	if runtime.GOOS == "windows" {
		data, err := os.ReadFile(link)
		require.NoError(t, err)
		assert.Equal(t, "crash-2.log", string(data))
		return
	}
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "crash-2.log", target)
}
