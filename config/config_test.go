package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-syslogsafer/endpoint"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), `syslog-safer.yml`)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_defaults(t *testing.T) {
	c, err := Load(``, map[string]interface{}{`dest`: `/dev/xlog`})
	require.NoError(t, err)

	want := Default()
	want.Dest = `/dev/xlog`
	assert.Equal(t, want, *c)
	assert.Equal(t, `/dev/log`, c.Source)
	assert.Equal(t, endpoint.Datagram, c.Transport)
	assert.Equal(t, ByteSize(128<<20), c.BufferSize)
	assert.Equal(t, `/var/run/syslog-safer.pid`, c.PidFile)
	assert.Empty(t, c.NotifyFile)
	assert.False(t, c.Verbose)
}

func TestLoad_missingDest(t *testing.T) {
	_, err := Load(``, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `dest is required`)
}

func TestLoad_file(t *testing.T) {
	path := writeFile(t, `
source: /run/src.sock
dest: /run/dst.sock
transport: stream
pidfile: ""
notify_file: /tmp/drops
buffer_size: 16M
verbose: true
chunk_size: 8k
writer_chunk_size: 64KiB
poll_timeout: 250ms
reconnect_backoff: 2s
bind_dir: /tmp
`)

	c, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Source:           `/run/src.sock`,
		Dest:             `/run/dst.sock`,
		Transport:        endpoint.Stream,
		PidFile:          ``,
		NotifyFile:       `/tmp/drops`,
		BufferSize:       16 << 20,
		Verbose:          true,
		ChunkSize:        8 << 10,
		WriterChunkSize:  64 << 10,
		PollTimeout:      250 * time.Millisecond,
		ReconnectBackoff: 2 * time.Second,
		SendTimeout:      time.Second,
		BindDir:          `/tmp`,
	}, *c)
}

func TestLoad_overridesWinOverFile(t *testing.T) {
	path := writeFile(t, "dest: /from/file\nbuffer_size: 16M\ntransport: stream\n")

	c, err := Load(path, map[string]interface{}{
		`dest`:        `/from/flag`,
		`buffer_size`: `32M`,
	})
	require.NoError(t, err)
	assert.Equal(t, `/from/flag`, c.Dest)
	assert.Equal(t, ByteSize(32<<20), c.BufferSize)
	assert.Equal(t, endpoint.Stream, c.Transport)
}

func TestLoad_missingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), `nope.yml`), nil)
	require.Error(t, err)
}

func TestLoad_invalidValues(t *testing.T) {
	for _, tc := range [...]struct {
		name      string
		overrides map[string]interface{}
	}{
		{`transport`, map[string]interface{}{`transport`: `tcp`}},
		{`buffer size`, map[string]interface{}{`buffer_size`: `lots`}},
		{`buffer too small`, map[string]interface{}{`buffer_size`: `4M`}},
		{`writer chunk too small`, map[string]interface{}{`chunk_size`: `32k`, `writer_chunk_size`: `16k`}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			overrides := map[string]interface{}{`dest`: `/dev/xlog`}
			for k, v := range tc.overrides {
				overrides[k] = v
			}
			_, err := Load(``, overrides)
			assert.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Dest = `/dev/xlog`
		return c
	}
	base := valid()
	require.NoError(t, base.Validate())

	for _, tc := range [...]struct {
		name   string
		mutate func(c *Config)
		err    string
	}{
		{`no dest`, func(c *Config) { c.Dest = `` }, `dest is required`},
		{`no source`, func(c *Config) { c.Source = `` }, `source is required`},
		{`same paths`, func(c *Config) { c.Dest = c.Source }, `must differ`},
		{`bad transport`, func(c *Config) { c.Transport = 9 }, `invalid transport`},
		{`small buffer`, func(c *Config) { c.BufferSize = MinBufferSize - 1 }, `at least 8.0 MiB`},
		{`zero chunk`, func(c *Config) { c.ChunkSize = 0 }, `chunk_size must be positive`},
		{`chunk over buffer`, func(c *Config) { c.ChunkSize = c.BufferSize + 1; c.WriterChunkSize = c.ChunkSize }, `exceeds buffer_size`},
		{`writer chunk`, func(c *Config) { c.WriterChunkSize = c.ChunkSize - 1 }, `writer_chunk_size`},
		{`poll timeout`, func(c *Config) { c.PollTimeout = 0 }, `poll_timeout`},
		{`backoff`, func(c *Config) { c.ReconnectBackoff = -1 }, `reconnect_backoff`},
		{`send timeout`, func(c *Config) { c.SendTimeout = 0 }, `send_timeout`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}
