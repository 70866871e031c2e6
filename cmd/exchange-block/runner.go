package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/test"
	"github.com/schollz/progressbar/v3"
	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/circuits/universal"
	"github.com/vocdoni/zk-exchange/config"
	"github.com/vocdoni/zk-exchange/log"
	"github.com/vocdoni/zk-exchange/state"
	"github.com/vocdoni/zk-exchange/storage"
	"github.com/vocdoni/zk-exchange/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	statePrefix   = []byte("s/")
	storagePrefix = []byte("q/")
)

// runner holds the state and block storage of one exchange, both kept in
// the same database.
type runner struct {
	cfg      *config.Config
	database db.Database
	state    *state.State
	storage  *storage.Storage
	progress io.Writer
}

func newRunner(cfg *config.Config, progress io.Writer) (*runner, error) {
	database, err := metadb.New(cfg.DB.Type, cfg.DB.Dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return newRunnerWithDB(cfg, database, progress)
}

func newRunnerWithDB(cfg *config.Config, database db.Database, progress io.Writer) (*runner, error) {
	r := &runner{
		cfg:      cfg,
		database: database,
		state:    state.New(prefixeddb.NewPrefixedDatabase(database, statePrefix), cfg.Exchange.ID),
		storage:  storage.New(prefixeddb.NewPrefixedDatabase(database, storagePrefix)),
		progress: progress,
	}
	if err := r.genesis(); err != nil {
		database.Close()
		return nil, err
	}
	return r, nil
}

func (r *runner) close() {
	if err := r.database.Close(); err != nil {
		log.Warnw("failed to close database", "error", err.Error())
	}
}

// genesis writes the genesis accounts while the exchange has no processed
// blocks. Writing them again gives the same state.
func (r *runner) genesis() error {
	if r.cfg.Exchange.Genesis == "" {
		return nil
	}
	if _, err := r.storage.LastBlock(); !errors.Is(err, storage.ErrNotFound) {
		if err != nil {
			return err
		}
		log.Debugw("exchange has blocks, genesis skipped", "exchange", r.cfg.Exchange.ID)
		return nil
	}
	data, err := os.ReadFile(r.cfg.Exchange.Genesis)
	if err != nil {
		return fmt.Errorf("read genesis: %w", err)
	}
	var accounts []state.GenesisAccount
	if err := json.Unmarshal(data, &accounts); err != nil {
		return fmt.Errorf("decode genesis: %w", err)
	}
	if err := r.state.Genesis(accounts...); err != nil {
		return err
	}
	root, err := r.state.Root()
	if err != nil {
		return err
	}
	log.Infow("genesis written", "exchange", r.cfg.Exchange.ID, "accounts", len(accounts), "root", root.String())
	return nil
}

// enqueueFile reads a JSON block and pushes it to the pending blocks.
func (r *runner) enqueueFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var b types.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("decode block %s: %w", path, err)
	}
	if b.ExchangeID != r.cfg.Exchange.ID {
		return fmt.Errorf("block %s belongs to exchange %d, not %d", path, b.ExchangeID, r.cfg.Exchange.ID)
	}
	if _, err := r.storage.PushBlock(&b); err != nil {
		return err
	}
	log.Debugw("block queued", "path", path, "transactions", len(b.Transactions))
	return nil
}

// processPending processes the pending blocks in queue order and returns
// how many were processed. It stops at the first block that fails, which
// stays in the queue.
func (r *runner) processPending() (int, error) {
	bar := progressbar.NewOptions(r.storage.CountPendingBlocks(),
		progressbar.OptionSetWriter(r.progress),
		progressbar.OptionSetDescription("blocks"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	defer func() { _ = bar.Finish() }()

	processed := 0
	for {
		b, k, err := r.storage.NextBlock()
		if errors.Is(err, storage.ErrNoMoreElements) {
			return processed, nil
		}
		if err != nil {
			return processed, err
		}
		rec, err := r.processBlock(b)
		if err != nil {
			if rerr := r.storage.ReleaseBlock(k); rerr != nil {
				log.Warnw("failed to release block", "error", rerr.Error())
			}
			return processed, err
		}
		number, err := r.storage.MarkBlockDone(k, rec)
		if err != nil {
			return processed, err
		}
		processed++
		_ = bar.Add(1)
		log.Infow("block processed",
			"number", number,
			"transactions", len(b.Transactions),
			"rootAfter", rec.MerkleRootAfter.String())
	}
}

// processBlock applies a block to the state and, if configured, solves the
// block circuit with its witness. The state only changes if everything
// succeeds.
func (r *runner) processBlock(b *types.Block) (*storage.BlockRecord, error) {
	if len(b.Signature) == 0 {
		return nil, fmt.Errorf("block is not signed by the operator")
	}
	if err := r.state.StartBlock(); err != nil {
		return nil, err
	}
	w, err := r.state.ProcessBlock(b, r.cfg.Block.Transactions, r.cfg.Block.OnchainDA)
	if err != nil {
		r.state.DiscardBlock()
		return nil, err
	}
	if r.cfg.Circuit.Check || r.cfg.Circuit.Compile {
		if err := r.check(w); err != nil {
			r.state.DiscardBlock()
			return nil, err
		}
	}
	if err := r.state.CommitBlock(); err != nil {
		return nil, err
	}
	return storage.NewBlockRecord(w, b.Signature), nil
}

// check solves the block circuit with the witness of a processed block.
// When the circuit is compiled the witness is stored next to it, named by
// the public data hash.
func (r *runner) check(w *state.BlockWitness) error {
	startTime := time.Now()
	assignment, err := universal.Assignment(w)
	if err != nil {
		return err
	}
	if r.cfg.Circuit.Compile {
		fullWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
		if err != nil {
			return fmt.Errorf("block witness: %w", err)
		}
		name := fmt.Sprintf("block_%s.wtns", w.PublicDataHash.Text(16))
		if err := circuits.StoreWitness(fullWitness, filepath.Join(r.cfg.Circuit.ArtifactsDir, name)); err != nil {
			return err
		}
	}
	if !r.cfg.Circuit.Check {
		return nil
	}
	placeholder := universal.NewCircuitPlaceholder(r.cfg.Block.Transactions, r.cfg.Block.OnchainDA)
	if err := test.IsSolved(placeholder, assignment, ecc.BN254.ScalarField()); err != nil {
		return fmt.Errorf("block circuit not solved: %w", err)
	}
	log.Debugw("block circuit solved", "took", time.Since(startTime).String())
	return nil
}

// compile builds the block circuit for the configured shape and stores its
// constraint system in the artifacts directory.
func (r *runner) compile() error {
	if !r.cfg.Circuit.Compile {
		return nil
	}
	if err := os.MkdirAll(r.cfg.Circuit.ArtifactsDir, 0o755); err != nil {
		return err
	}
	startTime := time.Now()
	placeholder := universal.NewCircuitPlaceholder(r.cfg.Block.Transactions, r.cfg.Block.OnchainDA)
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, placeholder)
	if err != nil {
		return fmt.Errorf("compile block circuit: %w", err)
	}
	log.Infow("block circuit compiled",
		"constraints", ccs.GetNbConstraints(),
		"took", time.Since(startTime).String())
	name := fmt.Sprintf("block_%d_da%t.ccs", r.cfg.Block.Transactions, r.cfg.Block.OnchainDA)
	return circuits.StoreConstraintSystem(ccs, filepath.Join(r.cfg.Circuit.ArtifactsDir, name))
}
