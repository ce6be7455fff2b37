package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPrefersContextScopedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db.env"), []byte("HOST=prod-db\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db-staging.env"), []byte("HOST=staging-db\n"), 0o600))

	l := New(dir)
	vals, err := l.Get("db", "staging")
	require.NoError(t, err)
	assert.Equal(t, "staging-db", vals["HOST"])

	vals, err = l.Get("db", "")
	require.NoError(t, err)
	assert.Equal(t, "prod-db", vals["HOST"])
}

func TestGetNotFound(t *testing.T) {
	l := New(t.TempDir())
	_, err := l.Get("missing", "")
	assert.Error(t, err)
}

func TestGetRejectsPathTraversal(t *testing.T) {
	l := New(t.TempDir())
	_, err := l.Get("../etc/passwd", "")
	assert.Error(t, err)
}
