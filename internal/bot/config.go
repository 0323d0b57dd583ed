package bot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/EgorLis/womstats/internal/chat"
	"github.com/EgorLis/womstats/internal/ranks"
	"github.com/EgorLis/womstats/internal/womapi"
)

// Keys read on every fetch, so an edited config file takes effect without a
// restart.
const (
	KeyGroupID          = "wom.group_id"
	KeyAPIKey           = "wom.api_key"
	KeyVerificationCode = "wom.verification_code"
)

// ConfigSource is the read-only view of settings the bot needs per fetch.
type ConfigSource interface {
	GetString(key string) string
}

// StaticConfig is a ConfigSource over a plain map.
type StaticConfig map[string]string

func (s StaticConfig) GetString(key string) string { return s[key] }

type WOMConf struct {
	womapi.Conf      `mapstructure:",squash"`
	GroupID          string `json:"group_id" mapstructure:"group_id"`
	APIKey           string `json:"api_key" mapstructure:"api_key"`
	VerificationCode string `json:"verification_code" mapstructure:"verification_code"`
}

type PollConf struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	Interval     time.Duration `json:"interval" mapstructure:"interval"`
	Tick         time.Duration `json:"tick" mapstructure:"tick"`
	OnStart      bool          `json:"on_start" mapstructure:"on_start"`
	SingleFlight bool          `json:"single_flight" mapstructure:"single_flight"`

	// group update-all every N poll intervals; 0 disables
	UpdateAllEvery int `json:"update_all_every" mapstructure:"update_all_every"`
}

type SummaryConf struct {
	Verbose bool `json:"verbose" mapstructure:"verbose"`
}

type RanksConf struct {
	Tiers    map[string]string `json:"tiers" mapstructure:"tiers"`
	DB       string            `json:"db" mapstructure:"db"`
	CSV      string            `json:"csv" mapstructure:"csv"`
	Announce bool              `json:"announce" mapstructure:"announce"`
}

type HotkeyConf struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

type LoggingConf struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

type Config struct {
	WOM     WOMConf      `json:"wom" mapstructure:"wom"`
	Poll    PollConf     `json:"poll" mapstructure:"poll"`
	Summary SummaryConf  `json:"summary" mapstructure:"summary"`
	Ranks   RanksConf    `json:"ranks" mapstructure:"ranks"`
	Chat    chat.HubConf `json:"chat" mapstructure:"chat"`
	Hotkey  HotkeyConf   `json:"hotkey" mapstructure:"hotkey"`
	Logging LoggingConf  `json:"logging" mapstructure:"logging"`
	Watch   bool         `json:"watch" mapstructure:"watch"`

	keys atomic.Pointer[StaticConfig]
}

// Source exposes the per-fetch keys. It reads a snapshot that is swapped on
// every config file change; viper itself is never read after LoadConfig
// returns, since its reload goroutine writes without locking.
func (c *Config) Source() ConfigSource {
	return snapshotSource{keys: &c.keys}
}

type snapshotSource struct {
	keys *atomic.Pointer[StaticConfig]
}

func (s snapshotSource) GetString(key string) string {
	keys := s.keys.Load()
	if keys == nil {
		return ""
	}
	return (*keys)[key]
}

func (c *Config) storeKeys(groupID, apiKey, verificationCode string) {
	c.keys.Store(&StaticConfig{
		KeyGroupID:          groupID,
		KeyAPIKey:           apiKey,
		KeyVerificationCode: verificationCode,
	})
}

// Options derives the bot runtime options.
func (c *Config) Options() Options {
	return Options{
		PollEnabled:    c.Poll.Enabled,
		Interval:       c.Poll.Interval,
		Tick:           c.Poll.Tick,
		OnStart:        c.Poll.OnStart,
		SingleFlight:   c.Poll.SingleFlight,
		UpdateAllEvery: c.Poll.UpdateAllEvery,
		Verbose:        c.Summary.Verbose,
		Announce:       c.Ranks.Announce,
		Hotkey:         c.Hotkey.Enabled,
	}
}

// DefaultTiers apply when the config has no ranks.tiers section. They are not
// registered as viper defaults because viper merges nested maps key by key.
var DefaultTiers = map[string]string{
	"0-10":      "Bronze",
	"10-50":     "Iron",
	"50-100":    "Steel",
	"100-250":   "Mithril",
	"250-500":   "Adamant",
	"500-1000":  "Rune",
	"1000-1500": "Dragon",
	"1500+":     "Zenyte",
}

// RankTable parses ranks.tiers, falling back to DefaultTiers.
func (c *Config) RankTable() (*ranks.Table, error) {
	if len(c.Ranks.Tiers) == 0 {
		return ranks.NewTable(DefaultTiers)
	}
	return ranks.NewTable(c.Ranks.Tiers)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wom.group_id", "")
	v.SetDefault("wom.api_key", "")
	v.SetDefault("wom.verification_code", "")
	v.SetDefault("wom.api_key_in", "query")
	v.SetDefault("wom.base_url", womapi.DefaultBaseURL)
	v.SetDefault("wom.timeout", "0s")
	v.SetDefault("wom.retries", 0)
	v.SetDefault("wom.min_wait", "1s")
	v.SetDefault("wom.max_wait", "30s")
	v.SetDefault("wom.log_debug", false)

	v.SetDefault("poll.enabled", true)
	v.SetDefault("poll.interval", "120s")
	v.SetDefault("poll.tick", "1s")
	v.SetDefault("poll.on_start", true)
	v.SetDefault("poll.single_flight", false)
	v.SetDefault("poll.update_all_every", 48)

	v.SetDefault("summary.verbose", false)

	v.SetDefault("ranks.db", "ranks.db")
	v.SetDefault("ranks.csv", "")
	v.SetDefault("ranks.announce", true)

	v.SetDefault("chat.listen", "127.0.0.1:8085")
	v.SetDefault("chat.allowed_origins", []string{})
	v.SetDefault("chat.history", 50)

	v.SetDefault("hotkey.enabled", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("watch", false)
}

// DefaultConfig returns the built-in defaults without reading any file.
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		logrus.Fatalf("error unmarshaling default config: %v", err)
	}
	config.storeKeys(config.WOM.GroupID, config.WOM.APIKey, config.WOM.VerificationCode)
	return &config
}

// LoadConfig reads .env, the YAML file (explicit path or the usual search
// paths) and WOMSTATS_* environment variables, in increasing priority.
func LoadConfig(configFile string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: Error loading .env file: %v\n", err)
	}

	v := viper.New()
	v.SetConfigName("womstats")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "womstats"))
	}
	if len(configFile) > 0 {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix("WOMSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	v.BindEnv(KeyGroupID, "WOMSTATS_GROUP_ID", "WOM_GROUP_ID")
	v.BindEnv(KeyAPIKey, "WOMSTATS_API_KEY", "WOM_API_KEY")
	v.BindEnv(KeyVerificationCode, "WOMSTATS_VERIFICATION_CODE", "WOM_VERIFICATION_CODE")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || len(configFile) > 0 {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		logrus.Debugln("No config file found, using defaults and environment")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.storeKeys(v.GetString(KeyGroupID), v.GetString(KeyAPIKey), v.GetString(KeyVerificationCode))

	if config.Watch && v.ConfigFileUsed() != "" {
		// runs on viper's watcher goroutine, right after it re-read the file
		v.OnConfigChange(func(e fsnotify.Event) {
			config.storeKeys(v.GetString(KeyGroupID), v.GetString(KeyAPIKey), v.GetString(KeyVerificationCode))
			logrus.WithFields(logrus.Fields{
				"file": e.Name,
			}).Infoln("Config file changed")
		})
		v.WatchConfig()
	}

	return &config, nil
}

// SetupLogging applies the logging section to the standard logrus logger.
func SetupLogging(conf LoggingConf) error {
	level, err := logrus.ParseLevel(conf.Level)
	if err != nil {
		return fmt.Errorf("error parsing log level: %w", err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(conf.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logrus.WithFields(logrus.Fields{
			"format": conf.Format,
		}).Warn("Unknown log format")
	}
	return nil
}
