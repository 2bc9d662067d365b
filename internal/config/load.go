package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"bidsmapper/internal/errors"
)

const (
	// FileName is the config file searched for in the working directory
	// and its parents.
	FileName = "bidsmapper.toml"
	// EnvPrefix prefixes environment overrides, e.g. BIDSMAPPER_ENGINE_WORKERS.
	EnvPrefix = "BIDSMAPPER"
	// UserDir is the per-user config directory under $HOME.
	UserDir = ".bidsmapper"
)

// Load reads the configuration. Sources in precedence order (lowest to
// highest): defaults, ~/.bidsmapper/bidsmapper.toml, the nearest
// bidsmapper.toml found upwards from the working directory, explicitPath,
// BIDSMAPPER_* environment variables. An empty explicitPath is skipped; a
// missing explicitPath is an error.
func Load(explicitPath string) (*Config, error) {
	v, err := NewViper(explicitPath)
	if err != nil {
		return nil, err
	}

	return LoadWithViper(v)
}

// LoadWithViper unmarshals a prepared viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return &cfg, nil
}

// NewViper builds the viper instance behind Load.
func NewViper(explicitPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	for _, path := range configPaths() {
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return nil, errors.Wrapf(err, "config file %s", explicitPath)
		}

		if err := mergeFile(v, explicitPath); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// configPaths returns the existing implicit config files, lowest precedence
// first.
func configPaths() []string {
	var paths []string

	if home, err := os.UserHomeDir(); err == nil {
		user := filepath.Join(home, UserDir, FileName)
		if fileExists(user) {
			paths = append(paths, user)
		}
	}

	if project := FindProjectConfig(); project != "" && !containsPath(paths, project) {
		paths = append(paths, project)
	}

	return paths
}

// FindProjectConfig walks up from the working directory and returns the
// first bidsmapper.toml, or "" if there is none.
func FindProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, FileName)
		if fileExists(path) {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}

		dir = parent
	}
}

func mergeFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.MergeInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if p == path {
			return true
		}
	}

	return false
}
