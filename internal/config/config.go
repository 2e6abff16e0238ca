// Package config manages application configuration from files and environment.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	OutputDir string `mapstructure:"output_dir"`
	WorkDir   string `mapstructure:"work_dir"`
	Ollama    struct {
		Host string `mapstructure:"host"`
	} `mapstructure:"ollama"`
	Extract struct {
		ModuleSuffix string `mapstructure:"module_suffix"`
	} `mapstructure:"extract"`
	Scan struct {
		Rules string `mapstructure:"rules"`
	} `mapstructure:"scan"`
	Format struct {
		HeadingMarker string `mapstructure:"heading_marker"`
	} `mapstructure:"format"`
	Cache struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"cache"`
	Audit struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"audit"`
	Chunk struct {
		Size int `mapstructure:"size"`
	} `mapstructure:"chunk"`
	Batch struct {
		Concurrency int `mapstructure:"concurrency"`
	} `mapstructure:"batch"`
	Serve struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"serve"`
}

// Load reads the configuration from ~/.macrodoc/config.yaml and MACRODOC_*
// environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(Dir())

	setDefaults()

	viper.SetEnvPrefix("MACRODOC")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// Read config file (non-fatal if missing)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	for key, value := range defaults() {
		viper.SetDefault(key, value)
	}
}

func defaults() map[string]any {
	return map[string]any{
		"provider":              "groq",
		"model":                 "",
		"output_dir":            "outputs",
		"work_dir":              "vba",
		"ollama.host":           "http://localhost:11434",
		"extract.module_suffix": ".bas",
		"scan.rules":            "",
		"format.heading_marker": "Functional Logic:",
		"cache.enabled":         true,
		"cache.path":            filepath.Join(Dir(), "cache.db"),
		"audit.enabled":         true,
		"audit.path":            filepath.Join(Dir(), "audit.log"),
		"chunk.size":            60000,
		"batch.concurrency":     4,
		"serve.addr":            "127.0.0.1:8765",
	}
}

// Dir is the directory holding the config file, cache and audit log.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".macrodoc"
	}
	return filepath.Join(home, ".macrodoc")
}
