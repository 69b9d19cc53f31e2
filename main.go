package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/turbekoff/tapecalc/pkg/calc"
	"github.com/turbekoff/tapecalc/pkg/env"
)

type EngineConfig struct {
	Rounding     calc.RoundingMode `env:"ROUNDING" env-default:"none"`
	Decimals     int               `env:"DECIMALS" env-default:"2"`
	Float        bool              `env:"FLOAT" env-default:"false"`
	AddMode      bool              `env:"ADD_MODE" env-default:"false"`
	AccumulateGT bool              `env:"ACCUMULATE_GT" env-default:"false"`
	MemoryMode   calc.MemoryMode   `env:"MEMORY_MODE" env-default:"algebraic"`
	TaxRate      float64           `env:"TAX_RATE" env-default:"22"`
}

func (c EngineConfig) Settings() calc.Settings {
	return calc.Settings{
		RoundingMode: c.Rounding,
		Decimals:     c.Decimals,
		Float:        c.Float,
		AddMode:      c.AddMode,
		AccumulateGT: c.AccumulateGT,
		MemoryMode:   c.MemoryMode,
	}
}

func (c EngineConfig) Options() []calc.Option {
	return []calc.Option{
		calc.WithSettings(c.Settings()),
		calc.WithTaxRate(c.TaxRate),
	}
}

type RedisConfig struct {
	Addr        string        `env:"ADDR" env-default:"localhost:6379"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" env-default:"0"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" env-default:"5s"`
}

type Config struct {
	BotToken                string        `env:"CALCBOT_TELEGRAM_TOKEN"`
	BotOffset               int           `env:"CALCBOT_TELEGRAM_OFFSET" env-default:"20"`
	BotTimeout              int           `env:"CALCBOT_TELEGRAM_TIMEOUT" env-default:"60"`
	MemcachedTTLTimeout     time.Duration `env:"CALCBOT_MEMCACHED_TTL_TIMEOUT" env-default:"20m"`
	MemcachedCleanupTimeout time.Duration `env:"CALCBOT_MEMCACHED_CLEANUP_TIMEOUT" env-default:"1m"`
	ShutdownTimeout         time.Duration `env:"CALCBOT_SHUTDOWN_TIMEOUT" env-default:"2m"`
	SessionBackend          string        `env:"CALCBOT_SESSION_BACKEND" env-default:"memory"`
	ArchivePath             string        `env:"CALCBOT_ARCHIVE_PATH" env-default:"tapecalc.db"`
	MetricsAddr             string        `env:"CALCBOT_METRICS_ADDR"`
	AdminIDs                []int64       `env:"CALCBOT_ADMIN_IDS"`
	LogLevel                slog.Level    `env:"CALCBOT_LOG_LEVEL" env-default:"info"`
	Redis                   RedisConfig   `env-prefix:"CALCBOT_REDIS_"`
	Engine                  EngineConfig  `env-prefix:"CALCBOT_ENGINE_"`
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Read(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Engine.Settings().Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var (
	config      *Config
	logger      = slog.Default()
	engineFlags EngineConfig
)

var rootCmd = &cobra.Command{
	Use:           "tapecalc",
	Short:         "Printing calculator with a replayable tape.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config, error: %w", err)
		}
		if err := applyEngineFlags(cmd.Flags(), &cfg.Engine); err != nil {
			return err
		}
		config = cfg
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		return nil
	},
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot(config, logger)
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables tapecalc reads.",
	Args:  cobra.NoArgs,
	// skips config loading so a broken environment can still be inspected
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeEnvTable(cmd.OutOrStdout())
	},
}

func writeEnvTable(w io.Writer) error {
	vars, err := env.Describe(&Config{})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Variable", "Type", "Default", "Required")
	for _, v := range vars {
		required := ""
		if v.Required {
			required = "yes"
		}
		if err := table.Append([]string{v.Name, v.Type, v.Default, required}); err != nil {
			return err
		}
	}
	return table.Render()
}

func init() {
	engineFlags.Rounding = calc.RoundNone
	engineFlags.MemoryMode = calc.MemoryAlgebraic

	flags := rootCmd.PersistentFlags()
	flags.Var(&engineFlags.Rounding, "rounding", "rounding mode: none, truncate, up, nearest5")
	flags.IntVar(&engineFlags.Decimals, "decimals", 2, "decimals printed on results")
	flags.BoolVar(&engineFlags.Float, "float", false, "print results with every significant digit")
	flags.BoolVar(&engineFlags.AddMode, "add-mode", false, "type digits as cents")
	flags.BoolVar(&engineFlags.AccumulateGT, "gt", false, "accumulate results into the grand total")
	flags.Var(&engineFlags.MemoryMode, "memory-mode", "memory mode: algebraic, stack")
	flags.Float64Var(&engineFlags.TaxRate, "tax-rate", 22, "tax rate in percent")

	rootCmd.AddCommand(botCmd, envCmd)
}

// applyEngineFlags copies the engine flags the user set over dst.
func applyEngineFlags(flags *pflag.FlagSet, dst *EngineConfig) error {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "rounding":
			dst.Rounding = engineFlags.Rounding
		case "decimals":
			dst.Decimals = engineFlags.Decimals
		case "float":
			dst.Float = engineFlags.Float
		case "add-mode":
			dst.AddMode = engineFlags.AddMode
		case "gt":
			dst.AccumulateGT = engineFlags.AccumulateGT
		case "memory-mode":
			dst.MemoryMode = engineFlags.MemoryMode
		case "tax-rate":
			dst.TaxRate = engineFlags.TaxRate
		}
	})
	return dst.Settings().Validate()
}

func runBot(config *Config, logger *slog.Logger) error {
	bot, err := LoadBot(config, logger)
	if err != nil {
		return fmt.Errorf("failed to connect telegram, error: %w", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if config.MetricsAddr != "" {
		go func() {
			if err := bot.metrics.Serve(ctx, config.MetricsAddr, logger); err != nil {
				logger.Error("failed to serve metrics", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("starting telegram bot", "sessions", config.SessionBackend)
		if err := bot.Run(); !errors.Is(err, ErrClosed) {
			logger.Error("failed to start telegram bot", "error", err)
		}
		quit <- os.Interrupt
	}()

	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	logger.Info("stopping telegram bot")
	if err := bot.Shutdown(shutdownCtx); err != nil && !errors.Is(err, ErrClosed) {
		logger.Error("failed to graceful shutdown telegram bot", "error", err)
	}
	logger.Info("telegram bot stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
