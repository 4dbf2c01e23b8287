package wayland

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Zereker/wayland/wire"
)

// Config is the file configuration of a server.
type Config struct {
	// RuntimeDir overrides XDG_RUNTIME_DIR.
	RuntimeDir string `toml:"runtime_dir"`
	// Socket is a display name inside the runtime directory or an absolute
	// socket path. Empty picks the first free wayland-N.
	Socket     string         `toml:"socket"`
	LogLevel   string         `toml:"log_level"`
	BufferSize int            `toml:"buffer_size"`
	Globals    []GlobalConfig `toml:"globals"`
}

// GlobalConfig declares an advertised global.
type GlobalConfig struct {
	Interface string `toml:"interface"`
	Version   uint32 `toml:"version"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		BufferSize: defaultBufferSize,
	}
}

// LoadConfig reads a TOML configuration file and fills in defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config parse failed (%s)", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "config invalid (%s)", path)
	}
	return cfg, nil
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer_size must not be negative, got %d", c.BufferSize)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	seen := make(map[string]bool)
	for i, g := range c.Globals {
		if g.Interface == "" {
			return fmt.Errorf("globals[%d]: interface is required", i)
		}
		if g.Version == 0 {
			return fmt.Errorf("globals[%d]: version must be positive", i)
		}
		if seen[g.Interface] {
			return fmt.Errorf("globals[%d]: duplicate interface %s", i, g.Interface)
		}
		seen[g.Interface] = true
	}
	return nil
}

// Listen opens the listener the configuration describes. A display name is
// bound inside the runtime directory under the same lock file protocol as
// the wayland-N scan; an absolute path is bound as is.
func (c Config) Listen(opts ...ListenerOption) (*Listener, error) {
	if c.RuntimeDir != "" {
		opts = append(opts, RuntimeDirOption(c.RuntimeDir))
	}
	if c.Socket == "" {
		return Listen(opts...)
	}
	if filepath.IsAbs(c.Socket) {
		return ListenPath(c.Socket, opts...)
	}

	o := newListenerOptions(opts)
	dir := o.runtimeDir
	if dir == "" {
		var err error
		if dir, err = RuntimeDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create runtime directory %s", dir)
	}

	path := filepath.Join(dir, c.Socket)
	l, err := listenLocked(path, o.logger)
	if errors.Is(err, errLocked) {
		return nil, wire.Xdg("%s is held by another server", path)
	}
	return l, err
}

// ConnOptions returns the connection options the configuration implies.
func (c Config) ConnOptions() []Option {
	var opts []Option
	if c.BufferSize > 0 {
		opts = append(opts, BufferSizeOption(c.BufferSize))
	}
	return opts
}
