package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "nntp:\n  host: news.example.org\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
	assert.Equal(t, "news.example.org", cfg.NNTP.Host)
	assert.Equal(t, 119, cfg.NNTP.Port)
	assert.Equal(t, 10*time.Second, cfg.NNTP.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.NNTP.IOTimeout)
	assert.Equal(t, 1024, cfg.NNTP.MaxLineLength)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.IncludeStdout)
	assert.Empty(t, cfg.Store.SQLitePath)
	assert.Empty(t, cfg.Reader.Group)
	assert.Equal(t, 25, cfg.Reader.PageSize)
	assert.Equal(t, 16<<20, cfg.Reader.MaxArticleBytes)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen:
  host: 127.0.0.1
  port: 9000
nntp:
  host: news.example.org
  port: 1119
  io_timeout: 5s
  hostname: gw.example.org
store:
  sqlite_path: /tmp/journal.db
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr())
	srv := cfg.Server()
	assert.Equal(t, "news.example.org", srv.Host)
	assert.Equal(t, 1119, srv.Port)
	assert.Equal(t, 5*time.Second, srv.IOTimeout)
	assert.Equal(t, "gw.example.org", srv.Hostname)
	assert.Equal(t, "/tmp/journal.db", cfg.Store.SQLitePath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "nntp:\n  host: news.example.org\n  port: 119\n")
	t.Setenv("NNTPGATE_NNTP_PORT", "563")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 563, cfg.NNTP.Port)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("NNTPGATE_NNTP_HOST", "env.example.org")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("nntp-host", "", "")
	flags.Int("listen-port", 0, "")
	require.NoError(t, flags.Parse([]string{"--nntp-host=flag.example.org", "--listen-port=8080"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "flag.example.org", cfg.NNTP.Host)
	assert.Equal(t, 8080, cfg.Listen.Port)
}

func TestLoadUnchangedFlagKeepsDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("nntp-host", "", "")
	flags.Int("nntp-port", 0, "")
	require.NoError(t, flags.Parse([]string{"--nntp-host=news.example.org"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 119, cfg.NNTP.Port)
}

func TestLoadValidation(t *testing.T) {
	tests := map[string]string{
		"missing host":  "nntp:\n  port: 119\n",
		"port too high": "nntp:\n  host: h\n  port: 70000\n",
		"bad listen":    "nntp:\n  host: h\nlisten:\n  port: 0\n",
		"negative io":   "nntp:\n  host: h\n  io_timeout: -1s\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("NNTPGATE_NNTP_HOST", "env.example.org")
	t.Setenv("NNTPGATE_STORE_SQLITE_PATH", "/var/lib/nntpgate/journal.db")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "env.example.org", cfg.NNTP.Host)
	assert.Equal(t, "/var/lib/nntpgate/journal.db", cfg.Store.SQLitePath)
}

func TestLoadReader(t *testing.T) {
	path := writeConfig(t, "nntp:\n  host: news.example.org\nreader:\n  group: misc.test\n  page_size: 50\n")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "misc.test", cfg.Reader.Group)
	assert.Equal(t, 50, cfg.Reader.PageSize)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("group", "", "")
	require.NoError(t, flags.Parse([]string{"--group=alt.test"}))

	cfg, err = Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "alt.test", cfg.Reader.Group)
}

func TestLoadRejectsHugePageSize(t *testing.T) {
	path := writeConfig(t, "nntp:\n  host: news.example.org\nreader:\n  page_size: 5000\n")

	_, err := Load(path, nil)
	assert.ErrorContains(t, err, "reader.page_size")
}
