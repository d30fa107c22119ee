package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// isolated returns loader options that ignore the working directory and
// the user's config.
func isolated(dir string) []LoaderOption {
	return []LoaderOption{WithSearchDirs(dir), WithDotEnv("")}
}

const legacyINI = `[Default]
SUBDOMAIN = clock
DOMAIN = example.com
USEDNSRESOLVER = False
CLOUDFLARE_TOKEN = secret
URL = https://collector.example.com/alive
`

func TestLoad_LegacyINI(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.ini", legacyINI)

	cfg, err := Load(isolated(dir)...)
	require.NoError(t, err)

	assert.Equal(t, "clock", cfg.Subdomain)
	assert.Equal(t, "example.com", cfg.Domain)
	assert.Equal(t, "clock.example.com", cfg.FQDN())
	assert.False(t, cfg.UseDNSResolver)
	assert.Equal(t, "secret", cfg.CloudflareToken)
	assert.Equal(t, "https://collector.example.com/alive", cfg.URL)
	assert.Equal(t, filepath.Join(dir, "config.ini"), cfg.ConfigFile)
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.ini", legacyINI)

	cfg, err := Load(isolated(dir)...)
	require.NoError(t, err)

	assert.Equal(t, "https://api.cloudflare.com/client/v4", cfg.CloudflareAPI)
	assert.Equal(t, "1.1.1.1:53", cfg.Nameserver)
	assert.Equal(t, 60, cfg.TTL)
	assert.Equal(t, time.Duration(0), cfg.MaxJitter)
	assert.Equal(t, 50*time.Second, cfg.IntervalMin)
	assert.Equal(t, 60*time.Second, cfg.IntervalMax)
	assert.Equal(t, 60*time.Second, cfg.StartupDelayMax)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, filepath.Join(".txtclock", "journal.db"), cfg.Journal)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "agent.yaml", `
subdomain: clock
domain: example.com.
cloudflare_token: secret
url: http://localhost:8080/alive
interval_min: 20
interval_max: 30s
max_jitter: 5s
journal: ""
log_format: json
`)

	cfg, err := Load(append(isolated(dir), WithConfigFile(path))...)
	require.NoError(t, err)

	assert.Equal(t, "example.com", cfg.Domain, "trailing dot is trimmed")
	assert.True(t, cfg.UseDNSResolver)
	assert.Equal(t, 20*time.Second, cfg.IntervalMin, "bare numbers are seconds")
	assert.Equal(t, 30*time.Second, cfg.IntervalMax)
	assert.Equal(t, 5*time.Second, cfg.MaxJitter)
	assert.Empty(t, cfg.Journal, "an empty journal path disables the journal")
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.ini", legacyINI)
	t.Setenv("TXTCLOCK_DOMAIN", "other.org")
	t.Setenv("USEDNSRESOLVER", "true")
	t.Setenv("LOGLEVEL", "DEBUG")

	cfg, err := Load(isolated(dir)...)
	require.NoError(t, err)

	assert.Equal(t, "other.org", cfg.Domain)
	assert.True(t, cfg.UseDNSResolver, "legacy USEDNSRESOLVER overrides the file")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.ini", legacyINI)
	env := writeFile(t, dir, ".env", "TXTCLOCK_METRICS_ADDR=127.0.0.1:9464\n")
	t.Cleanup(func() { os.Unsetenv("TXTCLOCK_METRICS_ADDR") })

	cfg, err := Load(WithSearchDirs(dir), WithDotEnv(env))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9464", cfg.MetricsAddr)
}

func TestLoad_FlagsWin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.ini", legacyINI)
	t.Setenv("TXTCLOCK_SUBDOMAIN", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String(KeySubdomain, "", "")
	flags.Duration(KeyRequestTimeout, 0, "")
	require.NoError(t, flags.Parse([]string{"--subdomain=from-flag", "--request_timeout=3s"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag(KeySubdomain, flags.Lookup(KeySubdomain)))
	require.NoError(t, v.BindPFlag(KeyRequestTimeout, flags.Lookup(KeyRequestTimeout)))

	cfg, err := Load(append(isolated(dir), WithViper(v))...)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Subdomain)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(append(isolated(dir), WithConfigFile(filepath.Join(dir, "nope.yaml")))...)
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
domain: example.com
url: ftp://collector
interval_min: 60s
interval_max: 30s
log_format: xml
`)

	_, err := Load(isolated(dir)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	for _, key := range []string{KeySubdomain, KeyCloudflareToken, KeyURL, KeyIntervalMax, KeyLogFormat} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoad_BadBoolean(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.ini", legacyINI)
	t.Setenv("USEDNSRESOLVER", "maybe")

	_, err := Load(isolated(dir)...)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   any
		want time.Duration
	}{
		{nil, 0},
		{"", 0},
		{"90", 90 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"2m", 2 * time.Minute},
		{45, 45 * time.Second},
		{int64(3), 3 * time.Second},
		{time.Second, time.Second},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}

	_, err := parseDuration("soon")
	assert.Error(t, err)
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"True", "yes", "1", "ON"} {
		b, err := parseBool(s)
		require.NoError(t, err)
		assert.True(t, b, s)
	}
	for _, s := range []string{"False", "no", "0", "off"} {
		b, err := parseBool(s)
		require.NoError(t, err)
		assert.False(t, b, s)
	}
}
