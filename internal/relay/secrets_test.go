package relay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func TestEnvFileProvider(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brave-search.env"), []byte("BRAVE_API_KEY=abc123\n# comment\nOTHER=\"quoted value\"\n"), 0600))

	p := EnvFileProvider{Dir: dir}
	env, err := p.ServiceEnv("brave-search")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"BRAVE_API_KEY": "abc123", "OTHER": "quoted value"}, env)

	env, err = p.ServiceEnv("unknown")
	require.NoError(t, err)
	assert.Empty(t, env)

	_, err = p.ServiceEnv("../escape")
	assert.Error(t, err)

	env, err = EnvFileProvider{}.ServiceEnv("brave-search")
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/bin", "TOKEN=old", "HOME=/root"}
	got := mergeEnv(base, map[string]string{"TOKEN": "new", "A_KEY": "1"})
	assert.Equal(t, []string{"PATH=/bin", "HOME=/root", "A_KEY=1", "TOKEN=new"}, got)

	assert.Equal(t, base, mergeEnv(base, nil))
}
