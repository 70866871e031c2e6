package config

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := Load("", nil)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Block.Transactions, qt.Equals, 8)
	c.Assert(cfg.Block.OnchainDA, qt.IsTrue)
	c.Assert(cfg.DB.Type, qt.Equals, "pebble")
	c.Assert(cfg.Circuit.Check, qt.IsTrue)
}

func TestLoadPriority(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	c.Assert(os.WriteFile(path, []byte(`
exchange:
  id: 7
block:
  transactions: 4
  onchain_da: false
log:
  level: debug
`), 0o600), qt.IsNil)

	cfg, err := Load(path, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Exchange.ID, qt.Equals, uint32(7))
	c.Assert(cfg.Block.Transactions, qt.Equals, 4)
	c.Assert(cfg.Block.OnchainDA, qt.IsFalse)
	c.Assert(cfg.Log.Level, qt.Equals, "debug")

	// env vars override the file
	t.Setenv("ZKEX_BLOCK_TRANSACTIONS", "16")
	cfg, err = Load(path, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Block.Transactions, qt.Equals, 16)

	// and flags override env vars
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("block.transactions", 0, "")
	c.Assert(flags.Parse([]string{"--block.transactions=2"}), qt.IsNil)
	cfg, err = Load(path, flags)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Block.Transactions, qt.Equals, 2)
}

func TestValidate(t *testing.T) {
	c := qt.New(t)
	for name, tc := range map[string]struct {
		env   string
		value string
	}{
		"log level":    {"ZKEX_LOG_LEVEL", "verbose"},
		"transactions": {"ZKEX_BLOCK_TRANSACTIONS", "0"},
	} {
		c.Run(name, func(c *qt.C) {
			c.Setenv(tc.env, tc.value)
			_, err := Load("", nil)
			c.Assert(err, qt.ErrorMatches, "invalid configuration: .*")
		})
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	c.Assert(os.WriteFile(path, []byte("circuit:\n  compile: true\n  artifacts_dir: \"\"\n"), 0o600), qt.IsNil)
	_, err := Load(path, nil)
	c.Assert(err, qt.ErrorMatches, "invalid configuration: circuit.artifacts_dir is required to compile")
}
