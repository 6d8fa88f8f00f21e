package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/informes/backend/internal/config"
	"github.com/informes/backend/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigName = "InformeService.config"

var rootCmd = &cobra.Command{
	Use:   "informes",
	Short: "Submit .docx documents to the report generator",
	Long: `informes stages Word documents (or whole folders), sends them to the
remote report generator and hands back informe_procesado.docx.

Without a subcommand it starts the web server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	cobra.OnInitialize(initViper)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file, XML or YAML (default is "+defaultConfigName+" next to the executable)")
	flags.String("data-dir", "", "data directory (uploads, results, history)")
	flags.String("submit-url", "", "report generator endpoint")
	flags.String("folder-url", "", "folder processing endpoint (empty keeps the placeholder)")
	flags.String("variant", "", "default variant: singleFile or folder")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.Int("port", 0, "HTTP port")

	for _, name := range []string{"config", "data-dir", "submit-url", "folder-url", "variant", "log-level", "port"} {
		cobra.CheckErr(viper.BindPFlag(name, flags.Lookup(name)))
	}

	rootCmd.AddCommand(serveCmd, submitCmd, watchCmd, versionCmd)
}

// initViper lets INFORME_* environment variables stand in for flags.
func initViper() {
	viper.SetEnvPrefix("INFORME")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "informes %s (built %s)\n", Version, BuildTime)
	},
}

// loadConfig reads the config file, applies flag overrides, validates and
// installs the logger.
func loadConfig() (*config.AppConfig, string, error) {
	configPath := viper.GetString("config")
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, "", fmt.Errorf("failed to get executable path: %w", err)
		}
		configPath = filepath.Join(filepath.Dir(exePath), defaultConfigName)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cfg)

	level, err := logging.ParseLevel(cfg.Advanced.LogLevel)
	logging.Setup(level)
	if err != nil {
		slog.Warn("falling back to info logging", "err", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

func applyFlags(cfg *config.AppConfig) {
	if viper.IsSet("port") && viper.GetInt("port") > 0 {
		cfg.Server.Port = viper.GetInt("port")
	}
	if v := viper.GetString("data-dir"); v != "" {
		cfg.SetDataDirectory(v)
	}
	if v := viper.GetString("submit-url"); v != "" {
		cfg.Remote.SubmitURL = v
	}
	if viper.IsSet("folder-url") {
		cfg.Remote.FolderURL = viper.GetString("folder-url")
	}
	if v := viper.GetString("variant"); v != "" {
		cfg.Submission.DefaultVariant = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Advanced.LogLevel = v
	}
}
