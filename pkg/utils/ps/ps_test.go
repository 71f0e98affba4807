package ps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPS(t *testing.T) {
	m, err := MemoryStatus()
	require.NoError(t, err)
	assert.NotZero(t, m.Total)

	c, err := CPUStatus()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c.Percent, 0.0)

	d, err := DiskStatus(t.TempDir())
	require.NoError(t, err)
	assert.NotEmpty(t, d.Total)
}

func TestDirDiskUsage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "videos"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), make([]byte, 100), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "videos", "b.avi"), make([]byte, 28), 0o600))

	size, err := DirDiskUsage(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(128), size)

	_, err = DirDiskUsage(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), make([]byte, 2048), 0o600))

	st := Collect(dir, "")
	assert.Equal(t, "2.0 KiB", st.Artifacts)
	assert.Empty(t, st.ClockOffset)
}
