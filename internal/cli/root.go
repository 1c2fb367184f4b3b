package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/entrole/internal/logging"
	"github.com/ppiankov/entrole/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const version = "0.3.0"

var (
	cfgFile  string
	envFile  string
	verbose  bool
	logLevel string
	logFile  string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "entrole",
	Short: "entrole - entity role resolution for financial search queries",
	Long: `entrole labels the entities of a search query with the role they play
in the query: the subject being asked about, the publishing organization,
the author, or a time that filters documents versus one that only
describes their content.

A query goes through the NER service, is normalized into typed entities,
classified by a generation model and reviewed by a correction model. The
result is a compact wire string such as "A1B2-subject-9|C3D4-filter_time-8"
and a search plan of hard filters and soft keywords.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of entrole.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("entrole v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.entrole/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with model credentials")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	// A .env file fills the process environment; variables already set win
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", envFile, err)
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".entrole"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := configureViper(viper.GetViper(), os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering defaults: %v\n", err)
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// configureViper reads ENTROLE_* variables and registers the defaults below
// them: the conventional LLM_*, ROLLOUT_*, OPTIMIZER_* and NER_URL variables
// over the built-in config
func configureViper(v *viper.Viper, getenv func(string) string) error {
	v.SetEnvPrefix("ENTROLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Register every key so ENTROLE_LLM_GENERATION_MODEL style variables apply
	if err := setDefaults(v, model.DefaultConfig()); err != nil {
		return err
	}
	for key, val := range model.EnvDefaults(getenv) {
		v.SetDefault(key, val)
	}
	return nil
}

// loadConfig merges defaults, the conventional variables, the config file,
// ENTROLE_* variables and flags
func loadConfig() (*model.Config, error) {
	return decodeConfig(viper.GetViper(), os.Getenv)
}

func decodeConfig(v *viper.Viper, getenv func(string) string) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	model.ApplyEnv(cfg, getenv)
	return cfg, nil
}

// newLogger builds the process logger from the logging section. --verbose
// lowers the level to debug.
func newLogger(cfg *model.Config) (*slog.Logger, func() error, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, closeFn, err := logging.New(logging.Options{
		Level: level,
		File:  cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configure logging: %w", err)
	}
	return logger, closeFn, nil
}

// setDefaults registers every field of cfg as a viper default, keyed by its
// yaml path
func setDefaults(v *viper.Viper, cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	flatten(v, "", tree)

	// Optional keys are omitted when empty but still need env binding
	for _, key := range []string{
		"llm.templates_file",
		"llm.generation.api_key", "llm.generation.base_url",
		"llm.correction.api_key", "llm.correction.base_url",
		"llm.judge.api_key", "llm.judge.base_url",
		"http.http_proxy", "http.https_proxy", "http.no_proxy",
		"cache.disk_dir", "logging.file",
	} {
		_ = v.BindEnv(key)
	}
	return nil
}

func flatten(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flatten(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}
