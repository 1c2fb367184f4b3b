package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/entrole/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage entrole configuration",
	Long: `Manage entrole configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. ENTROLE_* environment variables
3. Config file (~/.entrole/config.yaml)
4. LLM_*, ROLLOUT_*, OPTIMIZER_*, NER_URL (environment or .env)
5. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after merging defaults, config file, env vars and flags. API keys are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		configFile := viper.ConfigFileUsed()
		if configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		for _, p := range []*model.ProfileConfig{&cfg.LLM.Generation, &cfg.LLM.Correction, &cfg.LLM.Judge} {
			p.APIKey = maskKey(p.APIKey)
		}

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println("  Current Configuration")
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Println(string(yamlData))

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.entrole/config.yaml with all available options.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configDir := filepath.Join(home, ".entrole")
		configPath := filepath.Join(configDir, "config.yaml")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'entrole config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		// Helper for writing with error checking
		printf := func(format string, a ...any) {
			if err != nil {
				return
			}
			_, err = fmt.Fprintf(f, format, a...)
		}

		printf("# entrole configuration file\n")
		printf("#\n")
		printf("# Configuration hierarchy (highest to lowest priority):\n")
		printf("#   1. CLI flags\n")
		printf("#   2. Environment variables (ENTROLE_*, e.g. ENTROLE_LLM_GENERATION_MODEL)\n")
		printf("#   3. This config file\n")
		printf("#   4. LLM_*, ROLLOUT_*, OPTIMIZER_*, NER_URL (environment or .env)\n")
		printf("#   5. Built-in defaults\n\n")

		yamlData, mErr := yaml.Marshal(model.DefaultConfig())
		if mErr != nil {
			return fmt.Errorf("error marshaling config: %w", mErr)
		}
		printf("%s", yamlData)

		printf("\n# Credentials (recommended to keep in the environment or .env):\n")
		printf("#   LLM_API_KEY / LLM_BASE_URL / LLM_MODEL_NAME              all models\n")
		printf("#   ROLLOUT_API_KEY / ROLLOUT_BASE_URL / ROLLOUT_MODEL_NAME  generation\n")
		printf("#   OPTIMIZER_API_KEY / OPTIMIZER_BASE_URL / OPTIMIZER_MODEL_NAME judge\n")
		printf("#   LLM_REQUEST_INTERVAL                                     seconds between model calls\n")
		printf("#   NER_URL                                                  NER endpoint\n")

		if err != nil {
			return err
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  entrole config show\n")
		fmt.Printf("\n")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// maskKey keeps the last four characters of a secret
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
