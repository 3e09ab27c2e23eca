package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and
// environment variables. If configFile is empty, it searches for
// ingestpipe.yaml/.yml in standard locations. The search requires an
// explicit YAML extension to avoid matching the binary itself, which
// Viper's built-in SetConfigName would match (same base name, no
// extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set
		// name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("ingestpipe")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: INGESTPIPE_STORAGE_DSN
	viper.SetEnvPrefix("INGESTPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an ingestpipe config
// file with an explicit YAML extension (.yaml or .yml). This prevents
// Viper from matching the binary "ingestpipe" (no extension) in the
// current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".ingestpipe"),
		"/etc/ingestpipe",
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for
// ingestpipe.yaml or .yml. Returns the full path of the first match,
// or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "ingestpipe"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the PipelineConfig keys most useful to
// override from the environment, mirroring the teacher's
// bindNestedEnvKeys. Array fields (sources, flags.manifest) are left
// to the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("env")
	_ = viper.BindEnv("ruleset_version")
	_ = viper.BindEnv("concurrency")
	_ = viper.BindEnv("log_level")

	_ = viper.BindEnv("storage.driver")
	_ = viper.BindEnv("storage.dsn")

	_ = viper.BindEnv("replay.driver")
	_ = viper.BindEnv("replay.dir")
	_ = viper.BindEnv("replay.app_version")
	_ = viper.BindEnv("replay.git_sha")

	_ = viper.BindEnv("flags.driver")
	_ = viper.BindEnv("flags.namespace")
	_ = viper.BindEnv("flags.actor_key")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment
// overrides, sets defaults, applies dev defaults, validates, and returns
// the PipelineConfig. A caller that must apply CLI flag overrides
// (e.g. --dev) before validation uses LoadConfigRaw instead.
func LoadConfig() (*PipelineConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but
// does NOT apply dev defaults or validate. Use this when CLI flags may
// override DevMode before validation.
func LoadConfigRaw() (*PipelineConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg PipelineConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env
// vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
