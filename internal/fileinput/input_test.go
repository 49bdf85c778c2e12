package fileinput_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisplang/wisp/internal/fileinput"
)

func TestReadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.wisp")
	require.NoError(t, os.WriteFile(path, []byte("print 1;"), 0o644))

	src, name, err := fileinput.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "print 1;", string(src))
	assert.Equal(t, path, name)
}

func TestReadMissingPath(t *testing.T) {
	_, _, err := fileinput.Read(filepath.Join(t.TempDir(), "nope.wisp"))
	assert.Error(t, err)
}
