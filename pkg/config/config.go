package config

import (
	"github.com/spf13/viper"
)

// Config is the host binary's configuration. The engine itself takes
// no configuration; everything here is host policy (where tombstones
// go, which output forms are persisted).
type Config struct {
	// ProcRoot is the procfs mount the engine reads from.
	ProcRoot string `mapstructure:"procRoot"`

	// TombstoneDir receives the text tombstones.
	TombstoneDir string `mapstructure:"tombstoneDir"`

	// EnableBinaryTombstones also writes the CBOR form next to the
	// text one.
	EnableBinaryTombstones bool `mapstructure:"binaryTombstonesEnabled"`

	// PersistVerboseBody persists the per-thread body lines in
	// addition to the always-persisted header section.
	PersistVerboseBody bool `mapstructure:"verboseBodyEnabled"`

	// CollectOpenFiles snapshots the target's fd table into the
	// report.
	CollectOpenFiles bool `mapstructure:"openFilesEnabled"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("procRoot", "/proc")
	viper.SetDefault("tombstoneDir", "/var/lib/tombstones")
	viper.SetDefault("binaryTombstonesEnabled", true)
	viper.SetDefault("verboseBodyEnabled", true)
	viper.SetDefault("openFilesEnabled", true)

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return Config{}, err
	}

	var config Config
	err = viper.Unmarshal(&config)
	return config, err
}
