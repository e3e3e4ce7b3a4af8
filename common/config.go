// Package common holds the service configuration shared by the CLI, the
// HTTP server and the bot.
package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved service configuration. Values come from flags,
// TG_* environment variables and an optional config file, in that order of
// precedence.
type Config struct {
	StorageRoot    string `mapstructure:"storage-root"`
	DownloadsDir   string `mapstructure:"downloads-dir"`
	HTTPAddr       string `mapstructure:"http-addr"`
	BotToken       string `mapstructure:"bot-token"`
	BotEnabled     bool   `mapstructure:"bot-enabled"`
	TDLibVerbosity int    `mapstructure:"tdlib-verbosity"`

	ProbeInterval        time.Duration `mapstructure:"probe-interval"`
	MaxReconnectAttempts int           `mapstructure:"max-reconnect-attempts"`

	CleanupInterval  time.Duration `mapstructure:"cleanup-interval"`
	FileAgeThreshold time.Duration `mapstructure:"file-age-threshold"`
}

// BindFlags registers every config key as a CLI flag on the given set.
func BindFlags(flags *pflag.FlagSet) {
	flags.String("storage-root", "/data/telegrabber", "Directory for session state and credentials")
	flags.String("downloads-dir", "", "Directory for downloaded media (default <storage-root>/downloads)")
	flags.String("http-addr", ":3000", "HTTP listen address")
	flags.String("bot-token", "", "Bot API token for the bot front end")
	flags.Bool("bot-enabled", false, "Run the bot front end")
	flags.Int("tdlib-verbosity", 1, "TDLib log verbosity")
	flags.Duration("probe-interval", 3*time.Minute, "Keep-alive probe interval")
	flags.Int("max-reconnect-attempts", 5, "Reconnect attempts before giving up")
	flags.Duration("cleanup-interval", time.Hour, "How often the file cleaner runs")
	flags.Duration("file-age-threshold", 24*time.Hour, "Age after which downloaded files are removed")
}

// Load resolves the configuration from flags, TG_* environment variables
// and an optional telegrabber.yaml in the storage root or working
// directory.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	v.SetEnvPrefix("TG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("telegrabber")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(v.GetString("storage-root"))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		log.Info().Str("file", v.ConfigFileUsed()).Msg("Loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.DownloadsDir == "" {
		cfg.DownloadsDir = cfg.StorageRoot + "/downloads"
	}
	if cfg.BotEnabled && cfg.BotToken == "" {
		return nil, fmt.Errorf("bot-enabled requires bot-token (or TG_BOT_TOKEN)")
	}
	if cfg.MaxReconnectAttempts < 1 {
		return nil, fmt.Errorf("max-reconnect-attempts must be at least 1")
	}

	return &cfg, nil
}
