// Package config models the daemon's configuration, loaded from an optional
// YAML file, with command line overrides.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"

	"github.com/joeycumines/go-syslogsafer/endpoint"
)

const (
	DefaultSource     = `/dev/log`
	DefaultPidFile    = `/var/run/syslog-safer.pid`
	DefaultBufferSize = 128 * 1024 * 1024
	// MinBufferSize is the smallest permitted ring buffer capacity.
	MinBufferSize    = 8 * 1024 * 1024
	DefaultChunkSize = 16 * 1024
	DefaultBindDir   = `/var/tmp`
)

// Config is the complete configuration of a relay.
type Config struct {
	// Source is the unix socket to serve, e.g. /dev/log.
	Source string `config:"source"`
	// Dest is the unix socket to relay to. Required.
	Dest      string             `config:"dest"`
	Transport endpoint.Transport `config:"transport"`
	// PidFile is written on startup, and removed on exit. Empty disables.
	PidFile string `config:"pidfile"`
	// NotifyFile is overwritten each time data is dropped. Empty disables.
	NotifyFile string   `config:"notify_file"`
	BufferSize ByteSize `config:"buffer_size"`
	Verbose    bool     `config:"verbose"`
	// ChunkSize is the source read size, which bounds the size of each
	// buffered segment.
	ChunkSize ByteSize `config:"chunk_size"`
	// WriterChunkSize is the destination read size, which must be at least
	// ChunkSize.
	WriterChunkSize  ByteSize      `config:"writer_chunk_size"`
	PollTimeout      time.Duration `config:"poll_timeout"`
	ReconnectBackoff time.Duration `config:"reconnect_backoff"`
	SendTimeout      time.Duration `config:"send_timeout"`
	BindDir          string        `config:"bind_dir"`
}

var configOpts = []ucfg.Option{ucfg.PathSep(`.`)}

// Default returns the default configuration, which is not valid until Dest
// is set.
func Default() Config {
	return Config{
		Source:           DefaultSource,
		Transport:        endpoint.Datagram,
		PidFile:          DefaultPidFile,
		BufferSize:       DefaultBufferSize,
		ChunkSize:        DefaultChunkSize,
		WriterChunkSize:  DefaultChunkSize,
		PollTimeout:      500 * time.Millisecond,
		ReconnectBackoff: time.Second,
		SendTimeout:      time.Second,
		BindDir:          DefaultBindDir,
	}
}

// Load reads the YAML file at path, if path is non-empty, then applies
// overrides, keyed by config tag (e.g. "buffer_size"), over the defaults. The
// result is validated.
func Load(path string, overrides map[string]interface{}) (*Config, error) {
	raw := ucfg.New()

	if path != `` {
		file, err := yaml.NewConfigWithFile(path, configOpts...)
		if err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		if err := raw.Merge(file, configOpts...); err != nil {
			return nil, fmt.Errorf("config: merge %s: %w", path, err)
		}
	}

	if len(overrides) != 0 {
		if err := raw.Merge(overrides, configOpts...); err != nil {
			return nil, fmt.Errorf("config: merge overrides: %w", err)
		}
	}

	c := Default()
	if err := raw.Unpack(&c, configOpts...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate implements the go-ucfg Validator interface.
func (c *Config) Validate() error {
	switch {
	case c.Dest == ``:
		return errors.New("config: dest is required")
	case c.Source == ``:
		return errors.New("config: source is required")
	case c.Source == c.Dest:
		return errors.New("config: source and dest must differ")
	case !c.Transport.Valid():
		return fmt.Errorf("config: invalid transport: %s", c.Transport)
	case c.BufferSize < MinBufferSize:
		return fmt.Errorf("config: buffer_size must be at least %s: %s", ByteSize(MinBufferSize), c.BufferSize)
	case c.ChunkSize == 0:
		return errors.New("config: chunk_size must be positive")
	case c.ChunkSize > c.BufferSize:
		return fmt.Errorf("config: chunk_size %s exceeds buffer_size %s", c.ChunkSize, c.BufferSize)
	case c.WriterChunkSize < c.ChunkSize:
		return fmt.Errorf("config: writer_chunk_size %s must be at least chunk_size %s", c.WriterChunkSize, c.ChunkSize)
	case c.PollTimeout <= 0:
		return errors.New("config: poll_timeout must be positive")
	case c.ReconnectBackoff <= 0:
		return errors.New("config: reconnect_backoff must be positive")
	case c.SendTimeout <= 0:
		return errors.New("config: send_timeout must be positive")
	}
	return nil
}
