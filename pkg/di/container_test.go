package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/poreread/pkg/api"
	"github.com/ssargent/poreread/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Cache.Dir = filepath.Join(cfg.DataDir, "cache")
	return cfg
}

func TestContainerOpener(t *testing.T) {
	cfg := testConfig(t)
	c := NewContainer()
	c.Configure(cfg, nil)
	defer c.Close()

	path := filepath.Join(cfg.DataDir, "trace.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0600))

	opener, err := c.Opener()
	require.NoError(t, err)
	again, err := c.Opener()
	require.NoError(t, err)
	assert.Same(t, opener, again)

	e, err := opener.Open(path, "")
	require.NoError(t, err)
	n, err := e.ChannelLength(0)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	require.NoError(t, e.Close())

	assert.DirExists(t, cfg.Cache.Dir)
}

func TestContainerWithoutCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Enabled = false
	c := NewContainer()
	c.Configure(cfg, nil)
	defer c.Close()

	opener, err := c.Opener()
	require.NoError(t, err)
	assert.Len(t, opener.Options, 1)
	assert.NoDirExists(t, cfg.Cache.Dir)
}

func TestContainerInvalidFormats(t *testing.T) {
	cfg := testConfig(t)
	cfg.Formats.Raw.Extension = ".abf"
	c := NewContainer()
	c.Configure(cfg, nil)

	_, err := c.Formats()
	assert.Error(t, err)
	_, err = c.ExperimentRegistry()
	assert.Error(t, err)
}

func TestContainerExperimentRegistry(t *testing.T) {
	cfg := testConfig(t)
	c := NewContainer()
	c.Configure(cfg, nil)

	path := filepath.Join(cfg.DataDir, "trace.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0600))

	r, err := c.ExperimentRegistry()
	require.NoError(t, err)
	s, err := r.Open(path, "")
	require.NoError(t, err)
	require.NoError(t, r.CloseAll())
	require.NoError(t, c.Close())

	// registrations survive a new container
	c = NewContainer()
	c.Configure(cfg, nil)
	defer c.Close()
	r, err = c.ExperimentRegistry()
	require.NoError(t, err)
	n, err := r.Restore()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = r.Get(s.ID)
	assert.NoError(t, err)
	r.CloseAll()
}

type stubFactory struct{}

func (stubFactory) CreateServerStarter() api.ServerStarter { return nil }

func TestContainerServerFactory(t *testing.T) {
	c := NewContainer()
	assert.IsType(t, &api.DefaultServerFactory{}, c.GetServerFactory())

	c.SetServerFactory(stubFactory{})
	assert.Equal(t, stubFactory{}, c.GetServerFactory())
}
