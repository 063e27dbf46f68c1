package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	configFile  string
	outputFmt   string
	environment string
)

var rootCmd = &cobra.Command{
	Use:   "deprec",
	Short: "Non-destructive schema deprecation engine",
	Long: `deprec deprecates database schema elements by renaming them instead of
dropping them. Every deprecation plan carries its exact rollback plan, all
DDL runs transactionally, and deprecated elements are monitored for
continued access before anyone considers removal.

Removal itself is out of scope: this tool renames, observes, and restores.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./deprec.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&environment, "env", "", "Target environment (overrides config)")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

// initConfig merges, in ascending precedence: config file, DEPREC_* env
// variables, flags.
func initConfig() error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("deprec")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.deprec")
	}

	viper.SetEnvPrefix("DEPREC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("environment", "development")
	viper.SetDefault("serve.addr", ":8085")

	if err := viper.ReadInConfig(); err != nil {
		// A missing default config file is fine; env and flags still apply.
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// resolvedEnvironment returns the effective environment.
// Priority: --env flag > DEPREC_ENVIRONMENT / config file > development.
func resolvedEnvironment() string {
	if environment != "" {
		return environment
	}
	return viper.GetString("environment")
}

// openDB connects using database.dsn from the merged config. PostgreSQL is
// the supported engine; a plain file path opens SQLite for local trials.
func openDB() (*gorm.DB, error) {
	dsn := viper.GetString("database.dsn")
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is not configured (config file or DEPREC_DATABASE_DSN)")
	}

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return gorm.Open(postgres.Open(dsn), gormCfg)
	}
	return gorm.Open(sqlite.Open(dsn), gormCfg)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
