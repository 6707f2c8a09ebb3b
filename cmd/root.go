package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"db-sync/internal/config"

	"github.com/gookit/slog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	logLevel string
)

var RootCmd = &cobra.Command{
	Use:   "db-sync",
	Short: "Resumable table synchronization between databases",
	Long: `db-sync copies tables between MySQL, PostgreSQL, SQL Server and Oracle in
keyset-paginated batches. It picks a full, incremental or delta load from
the state of both tables, checkpoints every batch and resumes after a crash.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := viper.GetString("log.level")
		slog.Configure(func(logger *slog.SugaredLogger) {
			f := logger.Formatter.(*slog.TextFormatter)
			f.EnableColor = false
			logger.Level = slog.LevelByName(level)
		})
		return nil
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./db-sync.yaml)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("log.level", RootCmd.PersistentFlags().Lookup("log-level"))

	config.SetDefaults(viper.GetViper())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// next to the executable first, then the working directory
		if ex, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(ex))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("db-sync")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("DB_SYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
