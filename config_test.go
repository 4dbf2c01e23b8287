package wayland

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/wayland/wire"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "wldump.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
runtime_dir = "/run/user/1000"
socket = "wayland-trace"
log_level = "debug"

[[globals]]
interface = "wl_compositor"
version = 4

[[globals]]
interface = "wl_shm"
version = 1
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, Config{
		RuntimeDir: "/run/user/1000",
		Socket:     "wayland-trace",
		LogLevel:   "debug",
		BufferSize: defaultBufferSize,
		Globals: []GlobalConfig{
			{Interface: "wl_compositor", Version: 4},
			{Interface: "wl_shm", Version: 1},
		},
	}, cfg)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `socket = `},
		{"negative buffer", `buffer_size = -1`},
		{"log level", `log_level = "verbose"`},
		{"missing interface", "[[globals]]\nversion = 1"},
		{"zero version", "[[globals]]\ninterface = \"wl_seat\""},
		{"duplicate", "[[globals]]\ninterface = \"wl_seat\"\nversion = 1\n[[globals]]\ninterface = \"wl_seat\"\nversion = 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestConfig_Listen(t *testing.T) {
	dir := t.TempDir()

	l, err := Config{RuntimeDir: dir}.Listen()
	require.NoError(t, err)
	assert.Equal(t, "wayland-1", l.Name())
	require.NoError(t, l.Close())

	l, err = Config{RuntimeDir: filepath.Join(dir, "sub"), Socket: "wayland-trace"}.Listen()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sub", "wayland-trace"), l.Path())
	require.NoError(t, l.Close())

	abs := filepath.Join(dir, "abs.sock")
	l, err = Config{Socket: abs}.Listen()
	require.NoError(t, err)
	assert.Equal(t, abs, l.Path())
	require.NoError(t, l.Close())
}

func TestConfig_ListenNamedDisplay(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{RuntimeDir: dir, Socket: "wayland-5"}
	path := filepath.Join(dir, "wayland-5")

	// a socket file left behind by a server that crashed
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	ln.SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())
	_, err = os.Stat(path)
	require.NoError(t, err)

	l, err := cfg.Listen()
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())
	_, err = os.Stat(path + ".lock")
	assert.NoError(t, err, "lock file should exist")

	// the lock keeps a second server off the name
	_, err = cfg.Listen()
	assert.True(t, errors.Is(err, wire.ErrXdg), "got %v", err)

	require.NoError(t, l.Close())
	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file should be removed")

	l, err = cfg.Listen()
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestConfig_ConnOptions(t *testing.T) {
	assert.Empty(t, Config{}.ConnOptions())

	var opts options
	for _, o := range (Config{BufferSize: 4}).ConnOptions() {
		o(&opts)
	}
	assert.Equal(t, 4, opts.bufferSize)
}
