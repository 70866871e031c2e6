package circuits

// The circuits package contains the circuits that prove the state transition
// of a layer 2 exchange. A block is a fixed list of transactions, every one
// of them is one of eight types (noop, deposit, withdraw, transfer, spot
// trade, new account, public key update and owner change).
//
// The packages are organised bottom up:
//
//	circuits               constants, leaf types, hashing and float encodings
//	circuits/gadgets       arithmetic, comparison, float, signature and public data gadgets
//	circuits/merkle        quaternary merkle updates of accounts, balances and trade history
//	circuits/matching      order validation, matching and fee calculation
//	circuits/transactions  one circuit per transaction type plus the one-hot selection
//	circuits/universal     the block circuit
//
// A circuit shape can't depend on the witness, so every transaction slot
// runs the eight transaction circuits and only the outputs of the selected
// one are used to update the trees:
//
// +-------------+     +-------------+     +-----------+     +-------------+
// | transaction | --> | 8 tx types  | --> | one-hot   | --> | merkle      |
// | state       |     | circuits    |     | selection |     | updates     |
// +-------------+     +-------------+     +-----------+     +-------------+
//
// The block circuit chains the roots of the accounts tree, the protocol fee
// pool balances and the operator balances through every slot, and commits
// all the block data into a single sha256 hash, its only public input.
