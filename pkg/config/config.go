// Package config resolves paguro settings from flags, PAGURO_* environment
// variables and an optional YAML config file, through viper.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/paguro/pkg/booking"
	"github.com/go-go-golems/paguro/pkg/events"
	"github.com/go-go-golems/paguro/pkg/logging"
	"github.com/go-go-golems/paguro/pkg/session"
	"github.com/go-go-golems/paguro/pkg/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const EnvPrefix = "PAGURO"

type Settings struct {
	APIBaseURL string `mapstructure:"api-base-url"`
	BookingURL string `mapstructure:"booking-url"`
	Profile    string `mapstructure:"profile"`
	Mode       string `mapstructure:"mode"`

	SessionBackend string `mapstructure:"session-backend"`
	SessionFile    string `mapstructure:"session-file"`
	SessionDB      string `mapstructure:"session-db"`
	SessionKey     string `mapstructure:"session-key"`
	RedisAddr      string `mapstructure:"redis-addr"`
	RedisPrefix    string `mapstructure:"redis-prefix"`

	// RedirectDelay overrides the profile delay when set, e.g. "1500ms".
	RedirectDelay  string        `mapstructure:"redirect-delay"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	OpenCommand    string        `mapstructure:"open-command"`
	CopyLink       bool          `mapstructure:"copy-link"`
	EscapeHTML     bool          `mapstructure:"escape-html"`

	EventsRedis         bool   `mapstructure:"events-redis"`
	EventsRedisGroup    string `mapstructure:"events-redis-group"`
	EventsRedisConsumer string `mapstructure:"events-redis-consumer"`

	HistoryDB string `mapstructure:"history-db"`

	LogLevel   string `mapstructure:"log-level"`
	LogFormat  string `mapstructure:"log-format"`
	LogFile    string `mapstructure:"log-file"`
	WithCaller bool   `mapstructure:"with-caller"`
}

// Dir is the per-user directory holding the config file and local state.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paguro"
	}
	return filepath.Join(home, ".paguro")
}

// SetDefaults registers every key so that environment variables apply to all
// of them.
func SetDefaults(v *viper.Viper) {
	dir := Dir()
	ev := events.DefaultSettings()

	v.SetDefault("api-base-url", "http://localhost:8000")
	v.SetDefault("booking-url", "")
	v.SetDefault("profile", widget.ProfileEmbedded)
	v.SetDefault("mode", "auto")
	v.SetDefault("session-backend", session.BackendFile)
	v.SetDefault("session-file", filepath.Join(dir, "session.yaml"))
	v.SetDefault("session-db", filepath.Join(dir, "session.db"))
	v.SetDefault("session-key", "")
	v.SetDefault("redis-addr", ev.RedisAddr)
	v.SetDefault("redis-prefix", "paguro:")
	v.SetDefault("redirect-delay", "")
	v.SetDefault("request-timeout", 30*time.Second)
	v.SetDefault("open-command", "")
	v.SetDefault("copy-link", false)
	v.SetDefault("escape-html", false)
	v.SetDefault("events-redis", false)
	v.SetDefault("events-redis-group", ev.Group)
	v.SetDefault("events-redis-consumer", ev.Consumer)
	v.SetDefault("history-db", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("log-file", "")
	v.SetDefault("with-caller", false)
}

// AddFlags registers the widget flags on cmd. Logging flags come from
// logging.AddFlags.
func AddFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "Config file (default $HOME/.paguro/config.yaml)")
	f.String("api-base-url", "http://localhost:8000", "Base URL of the Paguro chat backend")
	f.String("booking-url", "", "Booking page URL (default <site>/prenotazione/)")
	f.String("profile", widget.ProfileEmbedded, "Widget profile (embedded or floating)")
	f.String("session-backend", session.BackendFile, "Where the session id is kept (memory, file, sqlite, redis)")
	f.String("session-file", "", "Session file for the file backend")
	f.String("session-db", "", "SQLite database for the sqlite backend")
	f.String("session-key", "", "Override the storage key of the session id")
	f.String("redis-addr", "", "Redis address for the redis session backend and event streams")
	f.String("redirect-delay", "", "Delay before opening the booking page (default from profile)")
	f.Duration("request-timeout", 30*time.Second, "Timeout of backend requests")
	f.String("open-command", "", "Command run with the booking URL, e.g. xdg-open")
	f.Bool("copy-link", false, "Copy the booking URL to the clipboard when redirecting")
	f.Bool("escape-html", false, "HTML-escape assistant text before formatting")
	f.Bool("events-redis", false, "Publish widget events on Redis Streams")
	f.String("history-db", "", "Record transcripts in this SQLite database")
}

// Init prepares v to read PAGURO_* variables and the config file. A missing
// default config file is not an error, a missing explicit one is.
func Init(v *viper.Viper, configFile string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			log.Debug().Str("component", "config").Msg("no config file found, using flags and environment")
			return nil
		}
		return errors.Wrap(err, "could not read config file")
	}
	log.Debug().Str("component", "config").Str("file", v.ConfigFileUsed()).Msg("loaded config file")
	return nil
}

// Load unmarshals and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

var (
	validBackends = map[string]bool{
		session.BackendMemory: true,
		session.BackendFile:   true,
		session.BackendSQLite: true,
		session.BackendRedis:  true,
	}
	validModes = map[string]bool{"auto": true, "chat": true, "repl": true, "once": true, "interactive": true}
)

func (s *Settings) Validate() error {
	u, err := url.Parse(strings.TrimSpace(s.APIBaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("api-base-url must be an absolute http(s) URL, got %q", s.APIBaseURL)
	}
	if s.BookingURL != "" {
		b, err := url.Parse(s.BookingURL)
		if err != nil || b.Scheme == "" || b.Host == "" {
			return errors.Errorf("booking-url must be an absolute URL, got %q", s.BookingURL)
		}
	}
	if _, err := widget.ProfileByName(s.Profile); err != nil {
		return err
	}
	if !validModes[strings.ToLower(s.Mode)] {
		return errors.Errorf("unknown mode %q", s.Mode)
	}
	if !validBackends[strings.ToLower(s.SessionBackend)] {
		return errors.Errorf("unknown session backend %q", s.SessionBackend)
	}
	if _, _, err := s.redirectDelay(); err != nil {
		return err
	}
	if s.RequestTimeout <= 0 {
		return errors.Errorf("request-timeout must be positive, got %s", s.RequestTimeout)
	}
	if strings.ToLower(s.SessionBackend) == session.BackendRedis && s.RedisAddr == "" {
		return errors.New("redis-addr is required for the redis session backend")
	}
	return nil
}

func (s *Settings) redirectDelay() (time.Duration, bool, error) {
	raw := strings.TrimSpace(s.RedirectDelay)
	if raw == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, errors.Wrapf(err, "invalid redirect-delay %q", s.RedirectDelay)
	}
	if d < 0 {
		return 0, false, errors.Errorf("redirect-delay must not be negative, got %s", d)
	}
	return d, true, nil
}

// WidgetProfile returns the selected profile with the session key and
// redirect delay overrides applied.
func (s *Settings) WidgetProfile() (widget.Profile, error) {
	p, err := widget.ProfileByName(s.Profile)
	if err != nil {
		return widget.Profile{}, err
	}
	if s.SessionKey != "" {
		p.StorageKey = s.SessionKey
	}
	d, ok, err := s.redirectDelay()
	if err != nil {
		return widget.Profile{}, err
	}
	if ok {
		p.RedirectDelay = d
	}
	return p, nil
}

// BookingPageURL is booking-url, or the default booking page on the site of
// the backend.
func (s *Settings) BookingPageURL() string {
	if s.BookingURL != "" {
		return s.BookingURL
	}
	u, err := url.Parse(s.APIBaseURL)
	if err != nil {
		return booking.DefaultPagePath
	}
	return booking.PageURLForSite(u.Scheme + "://" + u.Host)
}

func (s *Settings) SessionBackendSettings() session.BackendSettings {
	return session.BackendSettings{
		Kind:        s.SessionBackend,
		File:        s.SessionFile,
		DB:          s.SessionDB,
		RedisAddr:   s.RedisAddr,
		RedisPrefix: s.RedisPrefix,
	}
}

func (s *Settings) EventSettings() events.Settings {
	return events.Settings{
		RedisEnabled: s.EventsRedis,
		RedisAddr:    s.RedisAddr,
		Group:        s.EventsRedisGroup,
		Consumer:     s.EventsRedisConsumer,
	}
}

func (s *Settings) LoggingSettings() logging.Settings {
	return logging.Settings{
		Level:      s.LogLevel,
		Format:     s.LogFormat,
		File:       s.LogFile,
		WithCaller: s.WithCaller,
	}
}
