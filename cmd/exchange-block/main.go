// exchange-block applies operator blocks to the exchange state and checks
// the block circuit with the resulting witnesses. Blocks passed as
// arguments are queued first, then every pending block is processed in
// order and archived.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/zk-exchange/config"
	"github.com/vocdoni/zk-exchange/log"
)

func main() {
	flags := flag.NewFlagSet("exchange-block", flag.ExitOnError)
	configPath := flags.String("config", "", "configuration file (yaml, toml or json)")
	flags.String("log.level", log.LogLevelInfo, "log level (debug, info, warn, error)")
	flags.String("log.output", "stdout", "log output (stdout, stderr or a file path)")
	flags.String("db.type", "pebble", "database type")
	flags.String("db.dir", "zkexchange-data", "database directory")
	flags.Uint32("exchange.id", 0, "exchange id")
	flags.String("exchange.genesis", "", "genesis accounts JSON file, used while the exchange has no blocks")
	flags.Int("block.transactions", 8, "transaction slots of the block circuit")
	flags.Bool("block.onchain_da", true, "publish the transaction data in the public data")
	flags.Bool("circuit.check", true, "solve the block circuit with every processed block")
	flags.Bool("circuit.compile", false, "compile the block circuit and store its constraint system")
	flags.String("circuit.artifacts_dir", "artifacts", "directory for the circuit artifacts")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [block.json ...]\n", os.Args[0])
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		log.Fatal(err)
	}
	log.Init(cfg.Log.Level, cfg.Log.Output, nil)

	r, err := newRunner(cfg, os.Stderr)
	if err != nil {
		log.Fatal(err)
	}
	defer r.close()

	for _, path := range flags.Args() {
		if err := r.enqueueFile(path); err != nil {
			log.Fatal(err)
		}
	}
	if err := r.compile(); err != nil {
		log.Fatal(err)
	}
	n, err := r.processPending()
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("done", "processed", n)
}
