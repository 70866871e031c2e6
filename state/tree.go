package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/zk-exchange/circuits"
	"go.vocdoni.io/dvote/db"
)

var (
	nodePrefix = []byte("n/")
	leafPrefix = []byte("l/")
)

// kv is the key-value namespace a tree is stored in: a prefixed database
// transaction, a read only view or an overlay.
type kv interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// readOnly is the view of the database used outside a block.
type readOnly struct {
	db.Reader
}

func (readOnly) Set(_, _ []byte) error {
	return fmt.Errorf("need to StartBlock() first")
}

// overlay buffers the writes to a namespace so they can be applied later.
// The balances of the protocol pool and the operator are updated this way
// during a block, while their account leaves keep the root of the block
// start.
type overlay struct {
	base    kv
	changes map[string][]byte
}

func newOverlay(base kv) *overlay {
	return &overlay{base: base, changes: make(map[string][]byte)}
}

func (o *overlay) Get(key []byte) ([]byte, error) {
	if v, ok := o.changes[string(key)]; ok {
		return v, nil
	}
	return o.base.Get(key)
}

func (o *overlay) Set(key, value []byte) error {
	o.changes[string(key)] = value
	return nil
}

// flush writes the buffered changes to the base namespace.
func (o *overlay) flush() error {
	for k, v := range o.changes {
		if err := o.base.Set([]byte(k), v); err != nil {
			return err
		}
	}
	o.changes = make(map[string][]byte)
	return nil
}

// Tree is a sparse quaternary Merkle tree. Nodes equal to the empty subtree
// of their level are not necessarily stored, missing ones take the default
// hash of their level.
type Tree struct {
	kv       kv
	depth    int
	defaults []*big.Int
}

func newTree(store kv, depth int, defaults []*big.Int) *Tree {
	return &Tree{kv: store, depth: depth, defaults: defaults}
}

func nodeKey(level int, index uint64) []byte {
	key := make([]byte, len(nodePrefix)+9)
	copy(key, nodePrefix)
	key[len(nodePrefix)] = byte(level)
	binary.BigEndian.PutUint64(key[len(nodePrefix)+1:], index)
	return key
}

func leafKey(index uint64) []byte {
	key := make([]byte, len(leafPrefix)+8)
	copy(key, leafPrefix)
	binary.BigEndian.PutUint64(key[len(leafPrefix):], index)
	return key
}

// Depth returns the number of levels of the tree.
func (t *Tree) Depth() int {
	return t.depth
}

// Size returns the number of leaves of the tree.
func (t *Tree) Size() uint64 {
	return 1 << (2 * t.depth)
}

func (t *Tree) node(level int, index uint64) (*big.Int, error) {
	data, err := t.kv.Get(nodeKey(level, index))
	if errors.Is(err, db.ErrKeyNotFound) {
		return t.defaults[level], nil
	}
	if err != nil {
		return nil, err
	}
	return arbo.BytesToBigInt(data), nil
}

func (t *Tree) setNode(level int, index uint64, hash *big.Int) error {
	return t.kv.Set(nodeKey(level, index), arbo.BigIntToBytes(circuits.SerializedFieldSize, hash))
}

// Root returns the root hash of the tree.
func (t *Tree) Root() (*big.Int, error) {
	return t.node(t.depth, 0)
}

// Siblings returns the proof of the leaf at index: for every level from the
// leaves up, the three children of the parent other than the one on the
// path, in order.
func (t *Tree) Siblings(index uint64) ([]*big.Int, error) {
	if index >= t.Size() {
		return nil, fmt.Errorf("index %d out of a tree of %d leaves", index, t.Size())
	}
	siblings := make([]*big.Int, 0, t.depth*circuits.SiblingsPerLevel)
	for level := 0; level < t.depth; level++ {
		first := index &^ (circuits.TreeArity - 1)
		for i := first; i < first+circuits.TreeArity; i++ {
			if i == index {
				continue
			}
			h, err := t.node(level, i)
			if err != nil {
				return nil, err
			}
			siblings = append(siblings, h)
		}
		index /= circuits.TreeArity
	}
	return siblings, nil
}

// setLeafHash replaces the hash of the leaf at index and recomputes its path.
func (t *Tree) setLeafHash(index uint64, hash *big.Int) error {
	if index >= t.Size() {
		return fmt.Errorf("index %d out of a tree of %d leaves", index, t.Size())
	}
	if err := t.setNode(0, index, hash); err != nil {
		return err
	}
	for level := 1; level <= t.depth; level++ {
		index /= circuits.TreeArity
		children := make([]*big.Int, circuits.TreeArity)
		for i := range children {
			h, err := t.node(level-1, index*circuits.TreeArity+uint64(i))
			if err != nil {
				return err
			}
			children[i] = h
		}
		h, err := circuits.NativeHash(children...)
		if err != nil {
			return err
		}
		if err := t.setNode(level, index, h); err != nil {
			return err
		}
	}
	return nil
}

// leaf is implemented by the native leaves of the three trees.
type leaf interface {
	Serialize() []*big.Int
}

// getLeaf decodes the leaf record at index, a missing record is the empty
// leaf.
func getLeaf[L leaf](t *Tree, index uint64, empty L) (L, error) {
	data, err := t.kv.Get(leafKey(index))
	if errors.Is(err, db.ErrKeyNotFound) {
		return empty, nil
	}
	if err != nil {
		return empty, err
	}
	var l L
	if err := cbor.Unmarshal(data, &l); err != nil {
		return empty, fmt.Errorf("failed to decode leaf %d: %w", index, err)
	}
	return l, nil
}

// setLeaf stores the leaf record at index and updates the tree.
func setLeaf[L leaf](t *Tree, index uint64, l L) error {
	data, err := encodeRecord(l)
	if err != nil {
		return err
	}
	if err := t.kv.Set(leafKey(index), data); err != nil {
		return err
	}
	h, err := circuits.LeafHash(l)
	if err != nil {
		return err
	}
	return t.setLeafHash(index, h)
}

// LeafUpdate records the replacement of a leaf: the leaf before and after,
// the siblings of its path (the same for both) and the roots.
type LeafUpdate[L leaf] struct {
	Address    uint64
	Before     L
	After      L
	Siblings   []*big.Int
	RootBefore *big.Int
	RootAfter  *big.Int
}

// updateLeaf replaces the leaf at index by fn(before) and returns the
// update.
func updateLeaf[L leaf](t *Tree, index uint64, empty L, fn func(L) (L, error)) (*LeafUpdate[L], error) {
	before, err := getLeaf(t, index, empty)
	if err != nil {
		return nil, err
	}
	siblings, err := t.Siblings(index)
	if err != nil {
		return nil, err
	}
	rootBefore, err := t.Root()
	if err != nil {
		return nil, err
	}
	after, err := fn(before)
	if err != nil {
		return nil, err
	}
	if err := setLeaf(t, index, after); err != nil {
		return nil, err
	}
	rootAfter, err := t.Root()
	if err != nil {
		return nil, err
	}
	return &LeafUpdate[L]{
		Address:    index,
		Before:     before,
		After:      after,
		Siblings:   siblings,
		RootBefore: rootBefore,
		RootAfter:  rootAfter,
	}, nil
}

func encodeRecord(v any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return em.Marshal(v)
}
