package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigOptions holds configuration loading options
type ConfigOptions struct {
	ConfigFile  string
	ConfigPath  string
	ConfigName  string
	ConfigType  string
	EnvPrefix   string
	DefaultsMap map[string]interface{}
}

// NewViperConfig creates the service configuration with the standard search paths.
func NewViperConfig(configFile string, defaults map[string]interface{}) (*viper.Viper, error) {
	return NewViperConfigWithOptions(ConfigOptions{
		ConfigFile:  configFile,
		ConfigPath:  GetConfigPath(),
		ConfigName:  "scanhub",
		ConfigType:  "yaml",
		EnvPrefix:   "SCANHUB",
		DefaultsMap: defaults,
	})
}

// NewViperConfigWithOptions creates a Viper configuration with custom options.
// A missing config file is not an error unless ConfigFile names it explicitly;
// defaults and environment variables still apply.
func NewViperConfigWithOptions(opts ConfigOptions) (*viper.Viper, error) {
	v := viper.New()

	v.SetConfigType(opts.ConfigType)

	configPaths := []string{".", opts.ConfigPath}
	if opts.ConfigPath != "./config" {
		configPaths = append(configPaths, "./config")
	}
	configPaths = append(configPaths, "/etc/scanhub", "$HOME/.scanhub")

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
		v.SetConfigName(opts.ConfigName)
	}

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	}

	for key, value := range opts.DefaultsMap {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Debugf("No %s config file in %v, using defaults", opts.ConfigName, configPaths)
			return v, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Infof("Loaded config file: %s", v.ConfigFileUsed())
	return v, nil
}

// CreateScanDirectory creates the workspace directory of one scan under
// baseDir and returns its absolute path. The process working directory is
// never changed; tools run with the workspace as their own working dir.
func CreateScanDirectory(baseDir, scanID string) (string, error) {
	dir := filepath.Join(baseDir, SanitizeForFilesystem(scanID))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Errorf("Error creating scan directory: %v", err)
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return dir, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	log.Debugf("Created scan directory: %s", absDir)
	return absDir, nil
}

// SanitizeForFilesystem removes or replaces characters that are invalid in filenames
func SanitizeForFilesystem(input string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)

	sanitized := replacer.Replace(input)

	sanitized = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, sanitized)

	if sanitized == "" || sanitized == "." || sanitized == ".." {
		sanitized = "unknown"
	}

	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}

	return sanitized
}

// GetConfigPath returns the path where config files are expected to be found
func GetConfigPath() string {
	if path := os.Getenv("SCANHUB_CONFIG_PATH"); path != "" {
		return path
	}
	return "./config"
}
