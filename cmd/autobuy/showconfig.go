package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muaviaUsmani/autobuy/internal/config"
	"github.com/muaviaUsmani/autobuy/internal/errors"
	"github.com/muaviaUsmani/autobuy/internal/settings"
)

// configView is what show-config prints; secrets are reduced to whether they are set
type configView struct {
	Settings settings.View `json:"settings" yaml:"settings"`
	Process  processView   `json:"process" yaml:"process"`
}

type processView struct {
	BrokerMode          string `json:"broker_mode" yaml:"broker_mode"`
	CoinbaseKeySet      bool   `json:"coinbase_key_set" yaml:"coinbase_key_set"`
	LimitPriceFactor    string `json:"limit_price_factor" yaml:"limit_price_factor"`
	APIPort             string `json:"api_port,omitempty" yaml:"api_port,omitempty"`
	APIEnabled          bool   `json:"api_enabled" yaml:"api_enabled"`
	TOTPEnabled         bool   `json:"totp_enabled" yaml:"totp_enabled"`
	Redis               bool   `json:"redis" yaml:"redis"`
	Postgres            bool   `json:"postgres" yaml:"postgres"`
	JournalPath         string `json:"journal_path,omitempty" yaml:"journal_path,omitempty"`
	SettingsFile        string `json:"settings_file" yaml:"settings_file"`
	OrderCheckInterval  string `json:"order_check_interval" yaml:"order_check_interval"`
	TelegramConfigured  bool   `json:"telegram" yaml:"telegram"`
	WebhookConfigured   bool   `json:"webhook" yaml:"webhook"`
	LogLevel            string `json:"log_level" yaml:"log_level"`
	SchedulerTick       string `json:"scheduler_tick" yaml:"scheduler_tick"`
	BuyLockTTL          string `json:"buy_lock_ttl" yaml:"buy_lock_ttl"`
	PaperFillAfterPolls int    `json:"paper_fill_after,omitempty" yaml:"paper_fill_after,omitempty"`
}

func newShowConfigCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "show-config",
		Short: "Print the effective settings and process configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return errors.Wrap(err, "failed to load config")
			}
			s, err := settings.FromEnv()
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), buildConfigView(cfg, s), asYAML)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print YAML instead of JSON")
	return cmd
}

func buildConfigView(cfg *config.Config, s settings.Settings) configView {
	v := configView{
		Settings: s.View(),
		Process: processView{
			BrokerMode:         cfg.BrokerMode,
			CoinbaseKeySet:     cfg.CoinbaseAPIKey != "" && cfg.CoinbaseAPISecret != "",
			LimitPriceFactor:   cfg.LimitPriceFactor.String(),
			APIPort:            cfg.APIPort,
			APIEnabled:         cfg.APIEnabled(),
			TOTPEnabled:        cfg.AdminTOTPSecret != "",
			Redis:              cfg.RedisURL != "",
			Postgres:           cfg.DatabaseURL != "",
			JournalPath:        cfg.JournalPath,
			SettingsFile:       cfg.SettingsFile,
			OrderCheckInterval: cfg.OrderCheckInterval.String(),
			TelegramConfigured: cfg.TelegramConfigured(),
			WebhookConfigured:  cfg.WebhookURL != "",
			SchedulerTick:      cfg.SchedulerTickInterval.String(),
			BuyLockTTL:         cfg.BuyLockTTL.String(),
		},
	}
	if cfg.Logging != nil {
		v.Process.LogLevel = string(cfg.Logging.Level)
	}
	if cfg.BrokerMode == config.BrokerModePaper {
		v.Process.PaperFillAfterPolls = cfg.PaperFillAfter
	}
	return v
}

func writeConfig(w io.Writer, v configView, asYAML bool) error {
	if asYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
