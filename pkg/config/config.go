// Package config loads and validates agent configuration.
//
// Sources, lowest priority first: defaults, a config file, a .env file,
// the environment and command-line flags. The config file may be YAML,
// JSON or TOML, or an INI file with a [Default] section as written for
// older agents.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the agent reads.
const EnvPrefix = "TXTCLOCK"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config keys.
const (
	KeySubdomain       = "subdomain"
	KeyDomain          = "domain"
	KeyUseDNSResolver  = "use_dns_resolver"
	KeyCloudflareToken = "cloudflare_token"
	KeyURL             = "url"
	KeyCloudflareAPI   = "cloudflare_api"
	KeyNameserver      = "nameserver"
	KeyTTL             = "ttl"
	KeyMaxJitter       = "max_jitter"
	KeyIntervalMin     = "interval_min"
	KeyIntervalMax     = "interval_max"
	KeyStartupDelayMax = "startup_delay_max"
	KeyRequestTimeout  = "request_timeout"
	KeyJournal         = "journal"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyLogFile         = "log_file"
	KeyMetricsAddr     = "metrics_addr"
)

// legacyKeys maps keys spelled the old way to their current names.
var legacyKeys = map[string]string{
	"usednsresolver": KeyUseDNSResolver,
	"loglevel":       KeyLogLevel,
	"logformat":      KeyLogFormat,
}

// legacyEnv are unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	KeyUseDNSResolver: "USEDNSRESOLVER",
	KeyLogLevel:       "LOGLEVEL",
}

// Config is the validated agent configuration.
type Config struct {
	Subdomain       string
	Domain          string
	UseDNSResolver  bool
	CloudflareToken string
	URL             string
	CloudflareAPI   string
	Nameserver      string
	TTL             int
	MaxJitter       time.Duration
	IntervalMin     time.Duration
	IntervalMax     time.Duration
	StartupDelayMax time.Duration
	RequestTimeout  time.Duration
	Journal         string
	LogLevel        string
	LogFormat       string
	LogFile         string
	MetricsAddr     string

	// ConfigFile is the file that was read, if any.
	ConfigFile string
}

// FQDN returns the coordination record name.
func (c *Config) FQDN() string { return c.Subdomain + "." + c.Domain }

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyUseDNSResolver, true)
	v.SetDefault(KeyCloudflareAPI, "https://api.cloudflare.com/client/v4")
	v.SetDefault(KeyNameserver, "1.1.1.1:53")
	v.SetDefault(KeyTTL, 60)
	v.SetDefault(KeyMaxJitter, "0s")
	v.SetDefault(KeyIntervalMin, "50s")
	v.SetDefault(KeyIntervalMax, "60s")
	v.SetDefault(KeyStartupDelayMax, "60s")
	v.SetDefault(KeyRequestTimeout, "15s")
	v.SetDefault(KeyJournal, filepath.Join(".txtclock", "journal.db"))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyMetricsAddr, "")
}

// Loader reads configuration into a viper instance and builds a Config.
type Loader struct {
	v          *viper.Viper
	configFile string
	dotEnv     string
	searchDirs []string
	partial    bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigFile sets an explicit config file. A missing explicit file
// is an error.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) { l.configFile = path }
}

// WithDotEnv sets the .env file to load. Empty disables it.
func WithDotEnv(path string) LoaderOption {
	return func(l *Loader) { l.dotEnv = path }
}

// WithSearchDirs replaces the directories searched for config.ini or
// config.yaml when no explicit file is given.
func WithSearchDirs(dirs ...string) LoaderOption {
	return func(l *Loader) { l.searchDirs = dirs }
}

// WithPartial skips validation, for commands that only read the local
// journal.
func WithPartial() LoaderOption {
	return func(l *Loader) { l.partial = true }
}

// WithViper reads into v, typically one with command flags bound.
func WithViper(v *viper.Viper) LoaderOption {
	return func(l *Loader) { l.v = v }
}

// NewLoader returns a Loader with default search paths.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{dotEnv: ".env", searchDirs: defaultSearchDirs()}
	for _, opt := range opts {
		opt(l)
	}
	if l.v == nil {
		l.v = viper.New()
	}
	return l
}

// Load is NewLoader(opts...).Load().
func Load(opts ...LoaderOption) (*Config, error) {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func defaultSearchDirs() []string {
	dirs := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "txtclock"))
	}
	return dirs
}

// Load merges every source and validates the result.
func (l *Loader) Load() (*Config, error) {
	SetDefaults(l.v)

	if l.dotEnv != "" {
		if err := godotenv.Load(l.dotEnv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", l.dotEnv, err)
		}
	}

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	l.v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := l.v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(key), legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	path, err := l.findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := l.readFile(path); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg, err := build(l.v, !l.partial)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = path
	return cfg, nil
}

func (l *Loader) findConfigFile() (string, error) {
	if l.configFile != "" {
		if _, err := os.Stat(l.configFile); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return l.configFile, nil
	}
	for _, dir := range l.searchDirs {
		for _, name := range []string{"config.ini", "config.yaml", "config.yml", "config.toml", "config.json"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}
	return "", nil
}

func (l *Loader) readFile(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".ini") {
		values, err := readINI(path)
		if err != nil {
			return err
		}
		return l.v.MergeConfigMap(values)
	}
	l.v.SetConfigFile(path)
	return l.v.MergeInConfig()
}

// readINI flattens every section of an INI file into one map. Keys are
// lowercased and legacy spellings renamed. Later sections win.
func readINI(path string) (map[string]any, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	for _, section := range f.Sections() {
		for _, key := range section.Keys() {
			name := strings.ToLower(key.Name())
			if renamed, ok := legacyKeys[name]; ok {
				name = renamed
			}
			values[name] = key.String()
		}
	}
	return values, nil
}

func build(v *viper.Viper, validate bool) (*Config, error) {
	var errs []error
	duration := func(key string) time.Duration {
		d, err := parseDuration(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
		}
		return d
	}
	useResolver, err := parseBool(v.Get(KeyUseDNSResolver))
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalid, KeyUseDNSResolver, err))
	}

	cfg := &Config{
		Subdomain:       strings.Trim(strings.TrimSpace(v.GetString(KeySubdomain)), "."),
		Domain:          strings.Trim(strings.TrimSpace(v.GetString(KeyDomain)), "."),
		UseDNSResolver:  useResolver,
		CloudflareToken: strings.TrimSpace(v.GetString(KeyCloudflareToken)),
		URL:             strings.TrimSpace(v.GetString(KeyURL)),
		CloudflareAPI:   strings.TrimRight(v.GetString(KeyCloudflareAPI), "/"),
		Nameserver:      v.GetString(KeyNameserver),
		TTL:             v.GetInt(KeyTTL),
		MaxJitter:       duration(KeyMaxJitter),
		IntervalMin:     duration(KeyIntervalMin),
		IntervalMax:     duration(KeyIntervalMax),
		StartupDelayMax: duration(KeyStartupDelayMax),
		RequestTimeout:  duration(KeyRequestTimeout),
		Journal:         v.GetString(KeyJournal),
		LogLevel:        strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:       strings.ToLower(v.GetString(KeyLogFormat)),
		LogFile:         v.GetString(KeyLogFile),
		MetricsAddr:     v.GetString(KeyMetricsAddr),
	}

	if validate {
		errs = append(errs, cfg.Validate())
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and value ranges.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...)))
	}

	for key, val := range map[string]string{
		KeySubdomain:       c.Subdomain,
		KeyDomain:          c.Domain,
		KeyCloudflareToken: c.CloudflareToken,
		KeyURL:             c.URL,
	} {
		if val == "" {
			invalid(key, "required")
		}
	}
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			invalid(KeyURL, "must be an http(s) URL, got %q", c.URL)
		}
	}
	if c.TTL < 1 {
		invalid(KeyTTL, "must be positive, got %d", c.TTL)
	}
	if c.MaxJitter < 0 {
		invalid(KeyMaxJitter, "must not be negative")
	}
	if c.IntervalMin <= 0 {
		invalid(KeyIntervalMin, "must be positive")
	}
	if c.IntervalMax < c.IntervalMin {
		invalid(KeyIntervalMax, "must be at least %s", c.IntervalMin)
	}
	if c.StartupDelayMax < 0 {
		invalid(KeyStartupDelayMax, "must not be negative")
	}
	if c.RequestTimeout <= 0 {
		invalid(KeyRequestTimeout, "must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		invalid(KeyLogFormat, "must be text or json, got %q", c.LogFormat)
	}
	return errors.Join(errs...)
}

// parseDuration accepts Go durations and bare numbers of seconds.
func parseDuration(raw any) (time.Duration, error) {
	switch val := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return val, nil
	case int:
		return time.Duration(val) * time.Second, nil
	case int64:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, nil
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return time.Duration(n * float64(time.Second)), nil
		}
		return time.ParseDuration(s)
	default:
		return 0, fmt.Errorf("unsupported duration %v (%T)", raw, raw)
	}
}

// parseBool accepts the usual spellings plus yes/no and on/off.
func parseBool(raw any) (bool, error) {
	switch val := raw.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "y", "on":
			return true, nil
		case "0", "f", "false", "no", "n", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", val)
	default:
		return false, fmt.Errorf("not a boolean: %v (%T)", raw, raw)
	}
}
