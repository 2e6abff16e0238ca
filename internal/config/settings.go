package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/klytics/macrodoc/internal/ai"
)

var envKeyReplacer = strings.NewReplacer(".", "_")

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Wizard asks for the provider, its API key and the output directory, then
// saves the config. If reader is nil, reads from os.Stdin.
func Wizard(reader io.Reader, out io.Writer) error {
	if reader == nil {
		reader = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	scanner := bufio.NewScanner(reader)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	fmt.Fprintln(out, "macrodoc setup")
	fmt.Fprintln(out, strings.Repeat("-", 40))

	fmt.Fprintln(out, "Step 1/2: AI provider")
	for i, p := range ai.Providers {
		fmt.Fprintf(out, "  [%d] %s\n", i+1, p)
	}
	choice := ask("  Choice (enter to keep " + viper.GetString("provider") + "): ")
	for i, p := range ai.Providers {
		if choice == fmt.Sprint(i+1) || strings.EqualFold(choice, p) {
			viper.Set("provider", p)
		}
	}
	provider := viper.GetString("provider")
	if env := ai.KeyEnv(provider); env != "" && os.Getenv(env) == "" {
		if key := ask(fmt.Sprintf("  %s (enter to skip): ", env)); key != "" {
			viper.Set("api_keys."+provider, key)
		}
	}

	fmt.Fprintln(out, "Step 2/2: Output")
	if dir := ask("  Report directory (enter to keep " + viper.GetString("output_dir") + "): "); dir != "" {
		viper.Set("output_dir", dir)
	}

	if err := SaveConfig(); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}
	fmt.Fprintf(out, "\nConfig file: %s\n", ConfigPath())
	return nil
}

// WizardNonInteractive writes the defaults without asking anything.
func WizardNonInteractive() error {
	setDefaults()
	return SaveConfig()
}

// Validate checks config values and returns a list of issues.
func Validate() []ConfigIssue {
	var issues []ConfigIssue

	provider := strings.ToLower(viper.GetString("provider"))
	known := false
	for _, p := range ai.Providers {
		known = known || p == provider
	}
	switch {
	case !known:
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "error",
			Message:  fmt.Sprintf("unknown provider %q", provider),
			Fix:      "macrodoc config set provider " + strings.Join(ai.Providers, "|"),
		})
	case ai.KeyEnv(provider) == "":
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "info",
			Message:  fmt.Sprintf("%s configured (no API key needed)", provider),
		})
	case APIKey(provider) == "":
		env := ai.KeyEnv(provider)
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "error",
			Message:  fmt.Sprintf("provider is %q but %s is not set", provider, env),
			Fix:      fmt.Sprintf("export %s=...\nOr: macrodoc config set api_keys.%s ...", env, provider),
		})
	default:
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "info",
			Message:  fmt.Sprintf("%s API key configured", provider),
		})
	}

	if suffix := viper.GetString("extract.module_suffix"); !strings.HasPrefix(suffix, ".") {
		issues = append(issues, ConfigIssue{
			Key:      "extract.module_suffix",
			Severity: "warning",
			Message:  fmt.Sprintf("module suffix %q does not start with a dot", suffix),
			Fix:      "macrodoc config set extract.module_suffix .bas",
		})
	}

	if rules := viper.GetString("scan.rules"); rules != "" {
		if _, err := os.Stat(rules); err != nil {
			issues = append(issues, ConfigIssue{
				Key:      "scan.rules",
				Severity: "error",
				Message:  fmt.Sprintf("rule file %s is not readable", rules),
				Fix:      "macrodoc config set scan.rules \"\"",
			})
		}
	}

	if viper.GetInt("batch.concurrency") < 1 {
		issues = append(issues, ConfigIssue{
			Key:      "batch.concurrency",
			Severity: "warning",
			Message:  "batch concurrency below 1, workbooks will be processed one at a time",
		})
	}

	return issues
}

// APIKey returns the key for provider from its environment variable or,
// failing that, from api_keys.<provider> in the config file.
func APIKey(provider string) string {
	if env := ai.KeyEnv(provider); env != "" {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return viper.GetString("api_keys." + strings.ToLower(provider))
}

// ExportAPIKeys copies keys stored in the config file into the environment
// where the matching variable is unset, so providers find them.
func ExportAPIKeys() {
	for _, p := range ai.Providers {
		env := ai.KeyEnv(p)
		if env == "" || os.Getenv(env) != "" {
			continue
		}
		if key := viper.GetString("api_keys." + p); key != "" {
			os.Setenv(env, key)
		}
	}
	if host := viper.GetString("ollama.host"); host != "" && os.Getenv("OLLAMA_HOST") == "" {
		os.Setenv("OLLAMA_HOST", host)
	}
}

// ToEnv returns the settings as MACRODOC_* environment variables.
func ToEnv() map[string]string {
	env := make(map[string]string)
	for key := range defaults() {
		if v := viper.GetString(key); v != "" {
			env["MACRODOC_"+strings.ToUpper(envKeyReplacer.Replace(key))] = v
		}
	}
	return env
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// ResetConfig deletes the config file and restores defaults.
func ResetConfig() error {
	path := ConfigPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete config: %w", err)
	}
	for key, value := range defaults() {
		viper.Set(key, value)
	}
	return nil
}

// SaveConfig writes the current config to ~/.macrodoc/config.yaml.
func SaveConfig() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}
	// API keys may be stored here.
	os.Chmod(path, 0600)
	return nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// ShowConfig returns a formatted string of the current configuration.
func ShowConfig() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config: %s\n\n", ConfigPath()))

	keys := make([]string, 0, len(defaults()))
	for key := range defaults() {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sb.WriteString(fmt.Sprintf("  %-22s %s\n", key+":", viper.GetString(key)))
	}

	provider := viper.GetString("provider")
	if k := APIKey(provider); k != "" {
		sb.WriteString(fmt.Sprintf("  %-22s %s****\n", "api key:", k[:min(6, len(k))]))
	}
	return sb.String()
}
