// Package config loads the configuration of the exchange block tool from
// defaults, an optional file and ZKEX_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/zk-exchange/log"
	"go.vocdoni.io/dvote/db"
)

// EnvPrefix prefixes the environment variables that override the
// configuration: ZKEX_BLOCK_TRANSACTIONS overrides block.transactions.
const EnvPrefix = "ZKEX"

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Block    BlockConfig    `mapstructure:"block"`
	Circuit  CircuitConfig  `mapstructure:"circuit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// DBConfig is the database of the exchange state and the block archive.
type DBConfig struct {
	Type string `mapstructure:"type"`
	Dir  string `mapstructure:"dir"`
}

type ExchangeConfig struct {
	ID uint32 `mapstructure:"id"`
	// Genesis is a JSON file with the accounts of a new exchange. It is
	// ignored once the state has blocks.
	Genesis string `mapstructure:"genesis"`
}

// BlockConfig is the shape of the block circuit.
type BlockConfig struct {
	Transactions int  `mapstructure:"transactions"`
	OnchainDA    bool `mapstructure:"onchain_da"`
}

// CircuitConfig selects the circuit work done once a block is processed.
type CircuitConfig struct {
	// Check solves the circuit with the block witness.
	Check bool `mapstructure:"check"`
	// Compile builds the constraint system and stores it in ArtifactsDir.
	Compile      bool   `mapstructure:"compile"`
	ArtifactsDir string `mapstructure:"artifacts_dir"`
}

// Load reads the configuration. Priority: flags > env vars > config file >
// defaults. configPath may be empty.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Warnw("config file not found, using defaults", "path", configPath)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", log.LogLevelInfo)
	v.SetDefault("log.output", "stdout")

	v.SetDefault("db.type", db.TypePebble)
	v.SetDefault("db.dir", "zkexchange-data")

	v.SetDefault("exchange.id", 0)
	v.SetDefault("exchange.genesis", "")

	v.SetDefault("block.transactions", 8)
	v.SetDefault("block.onchain_da", true)

	v.SetDefault("circuit.check", true)
	v.SetDefault("circuit.compile", false)
	v.SetDefault("circuit.artifacts_dir", "artifacts")
}

// Validate checks the values that would otherwise fail deep inside the
// block processing.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case log.LogLevelDebug, log.LogLevelInfo, log.LogLevelWarn, log.LogLevelError:
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.DB.Dir == "" {
		return fmt.Errorf("db.dir is required")
	}
	if c.Block.Transactions <= 0 {
		return fmt.Errorf("block.transactions must be positive, got %d", c.Block.Transactions)
	}
	if c.Circuit.Compile && c.Circuit.ArtifactsDir == "" {
		return fmt.Errorf("circuit.artifacts_dir is required to compile")
	}
	return nil
}
