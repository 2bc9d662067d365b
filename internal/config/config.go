// Package config loads bidsmapper settings with viper: defaults, then
// config files, then BIDSMAPPER_* environment variables.
package config

// Config is the complete bidsmapper configuration.
type Config struct {
	Naming   NamingConfig   `mapstructure:"naming" toml:"naming"`
	Template TemplateConfig `mapstructure:"template" toml:"template"`
	Engine   EngineConfig   `mapstructure:"engine" toml:"engine"`
	Log      LogConfig      `mapstructure:"log" toml:"log"`
}

// NamingConfig controls path labels and identity names.
type NamingConfig struct {
	SubjectPrefix string `mapstructure:"subject_prefix" toml:"subject_prefix"` // folder prefix of subject labels
	SessionPrefix string `mapstructure:"session_prefix" toml:"session_prefix"` // folder prefix of session labels
	SuffixEntity  string `mapstructure:"suffix_entity" toml:"suffix_entity"`   // rendered bare at the end of names
	Sanitize      bool   `mapstructure:"sanitize" toml:"sanitize"`
}

// TemplateConfig names the reserved groups.
type TemplateConfig struct {
	Unassigned string `mapstructure:"unassigned" toml:"unassigned"`
	Discard    string `mapstructure:"discard" toml:"discard"`
}

// EngineConfig tunes mapping sessions.
type EngineConfig struct {
	Workers     int               `mapstructure:"workers" toml:"workers"`
	CacheSize   int               `mapstructure:"cache_size" toml:"cache_size"` // 0 disables the classification cache
	Preferences map[string]string `mapstructure:"preferences" toml:"preferences,omitempty"`
}

// LogConfig selects the log encoder and level.
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json"`
	Level string `mapstructure:"level" toml:"level"`
}
