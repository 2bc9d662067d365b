package config

import (
	"github.com/spf13/viper"

	"bidsmapper/internal/classify"
	"bidsmapper/internal/engine"
	"bidsmapper/internal/identity"
	"bidsmapper/internal/resolve"
	"bidsmapper/internal/template"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Naming defaults
	v.SetDefault("naming.subject_prefix", resolve.DefaultSubjectPrefix)
	v.SetDefault("naming.session_prefix", resolve.DefaultSessionPrefix)
	v.SetDefault("naming.suffix_entity", identity.DefaultSuffixEntity)
	v.SetDefault("naming.sanitize", true)

	// Reserved groups
	v.SetDefault("template.unassigned", template.DefaultUnassignedGroup)
	v.SetDefault("template.discard", template.DefaultDiscardGroup)

	// Engine defaults
	v.SetDefault("engine.workers", engine.DefaultWorkers)
	v.SetDefault("engine.cache_size", classify.DefaultCacheSize)
	v.SetDefault("engine.preferences", map[string]string{})

	// Logging defaults
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// Default returns the configuration with every default applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		// Defaults always unmarshal.
		panic(err)
	}

	return cfg
}
