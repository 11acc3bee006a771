package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-syslogsafer/config"
	"github.com/joeycumines/go-syslogsafer/endpoint"
)

func execute(t *testing.T, args ...string) (*config.Config, string, error) {
	t.Helper()
	var (
		stderr bytes.Buffer
		got    *config.Config
	)
	cmd := newRootCommand(&stderr, func(ctx context.Context, cfg config.Config, logger *logiface.Logger[logiface.Event]) error {
		require.NotNil(t, ctx)
		require.NotNil(t, logger)
		got = &cfg
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(&stderr)
	err := cmd.Execute()
	return got, stderr.String(), err
}

func TestRootCommand_defaults(t *testing.T) {
	cfg, _, err := execute(t, `-d`, `/dev/xlog`)
	require.NoError(t, err)
	want := config.Default()
	want.Dest = `/dev/xlog`
	assert.Equal(t, want, *cfg)
}

func TestRootCommand_flags(t *testing.T) {
	cfg, _, err := execute(t,
		`-s`, `/run/src`,
		`--dest=/run/dst`,
		`-t`, `stream`,
		`-p`, ``,
		`-n`, `/tmp/notify`,
		`-b`, `100000000`,
		`-v`,
	)
	require.NoError(t, err)
	assert.Equal(t, `/run/src`, cfg.Source)
	assert.Equal(t, `/run/dst`, cfg.Dest)
	assert.Equal(t, endpoint.Stream, cfg.Transport)
	assert.Empty(t, cfg.PidFile)
	assert.Equal(t, `/tmp/notify`, cfg.NotifyFile)
	assert.Equal(t, config.ByteSize(100000000), cfg.BufferSize)
	assert.True(t, cfg.Verbose)
}

func TestRootCommand_bufferUnits(t *testing.T) {
	cfg, _, err := execute(t, `-d`, `/dev/xlog`, `-b`, `64M`)
	require.NoError(t, err)
	assert.Equal(t, config.ByteSize(64<<20), cfg.BufferSize)
}

func TestRootCommand_flagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), `syslog-safer.yml`)
	require.NoError(t, os.WriteFile(path, []byte("dest: /from/file\nsource: /file/src\nbuffer_size: 16M\ntransport: stream\n"), 0600))

	cfg, _, err := execute(t, `-c`, path, `-d`, `/from/flag`)
	require.NoError(t, err)
	assert.Equal(t, `/from/flag`, cfg.Dest)
	assert.Equal(t, `/file/src`, cfg.Source)
	assert.Equal(t, config.ByteSize(16<<20), cfg.BufferSize)
	assert.Equal(t, endpoint.Stream, cfg.Transport)
}

func TestRootCommand_errors(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		args []string
	}{
		{`missing dest`, nil},
		{`small buffer`, []string{`-d`, `/dev/xlog`, `-b`, `1M`}},
		{`bad transport`, []string{`-d`, `/dev/xlog`, `-t`, `tcp`}},
		{`bad buffer`, []string{`-d`, `/dev/xlog`, `-b`, `big`}},
		{`positional`, []string{`-d`, `/dev/xlog`, `extra`}},
		{`unknown flag`, []string{`-D`}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, stderr, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, stderr, `Error:`)
		})
	}
}

func TestRootCommand_runError(t *testing.T) {
	var stderr bytes.Buffer
	cause := errors.New(`boom`)
	cmd := newRootCommand(&stderr, func(context.Context, config.Config, *logiface.Logger[logiface.Event]) error {
		return cause
	})
	cmd.SetArgs([]string{`-d`, `/dev/xlog`})
	assert.ErrorIs(t, cmd.Execute(), cause)
	assert.Contains(t, stderr.String(), `boom`)
}
