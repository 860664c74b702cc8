// Package config loads bitmapdb's operational configuration via viper, so
// it can come from a config file, environment variables, or both.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the plain struct every other package depends on; nothing
// downstream of Load depends on viper itself.
type Config struct {
	// TableName is the table this process operates on (heap file
	// "<TableName>.db", metadata file "<TableName>.txt").
	TableName string
	// PoolSize is the buffer pool's fixed frame count.
	PoolSize int
	// WaitOnExhaustion enables blocking fetchPage/appendNewPage instead of
	// returning PoolExhausted when every frame is pinned.
	WaitOnExhaustion bool
	// LogLevel is passed straight to dblog.New ("debug", "info", "warn",
	// "error").
	LogLevel string
}

func defaults(v *viper.Viper) {
	v.SetDefault("table_name", "bitmapdb")
	v.SetDefault("pool_size", 64)
	v.SetDefault("wait_on_exhaustion", false)
	v.SetDefault("log_level", "info")
}

// Load reads configuration from path (if non-empty) and BITMAPDB_*
// environment variables, falling back to defaults for anything unset. path
// may point to a YAML, TOML or JSON file; a missing path is not an error as
// long as defaults and/or env vars fill it in.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("bitmapdb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return &Config{
		TableName:        v.GetString("table_name"),
		PoolSize:         v.GetInt("pool_size"),
		WaitOnExhaustion: v.GetBool("wait_on_exhaustion"),
		LogLevel:         v.GetString("log_level"),
	}, nil
}
