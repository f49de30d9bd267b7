package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pledge",
	Short: "A custodial fund-accounting ledger with delegated spending",
	Long: `Pledge tracks donated funds as notes that donors delegate, delegates
propose to projects and projects withdraw through a vault.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		level := slog.LevelInfo
		if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("driver", "memory", "store driver: memory or leveldb")
	rootCmd.PersistentFlags().String("path", "pledge.db", "leveldb directory")
	rootCmd.PersistentFlags().String("currency", "eth", "ledger currency")

	_ = viper.BindPFlag("store.driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("path"))
	_ = viper.BindPFlag("currency", rootCmd.PersistentFlags().Lookup("currency"))
}

// initConfig reads the config file, if any, and PLEDGE_* environment
// variables. PLEDGE_STORE_DRIVER sets store.driver.
func initConfig() error {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("store.driver", "memory")
	viper.SetDefault("store.path", "pledge.db")
	viper.SetDefault("store.cache", 16)
	viper.SetDefault("currency", "eth")
	viper.SetDefault("vault.operators", []string{})
	viper.SetDefault("serve.listen", "127.0.0.1:8080")
	viper.SetDefault("serve.base_path", "/pledge")
	viper.SetDefault("serve.allowed_origins", []string{"*"})

	viper.SetEnvPrefix("pledge")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile == "" {
		return nil
	}
	viper.SetConfigType("yaml")
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}
