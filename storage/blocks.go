package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vocdoni/zk-exchange/log"
	"github.com/vocdoni/zk-exchange/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// PushBlock appends a block to the pending blocks queue and returns its
// key. Blocks are handed out by NextBlock in the order they were pushed.
func (s *Storage) PushBlock(b *types.Block) ([]byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	seq, err := s.nextSequence(queueSequenceKey)
	if err != nil {
		return nil, fmt.Errorf("queue sequence: %w", err)
	}
	key := uint64Key(seq)
	if err := s.setArtifact(pendingBlockPrefix, key, b); err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}
	return key, nil
}

// NextBlock returns the oldest non-reserved pending block, creates a
// reservation, and returns it with its key. If no blocks are available,
// returns ErrNoMoreElements. The key is used to mark the block as done
// after processing, or to release it if processing failed.
func (s *Storage) NextBlock() (*types.Block, []byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	pr := prefixeddb.NewPrefixedReader(s.db, pendingBlockPrefix)
	var chosenKey, chosenVal []byte
	if err := pr.Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(blockReservationPrefix, k) {
			return true
		}
		chosenKey = append([]byte{}, k...)
		chosenVal = append([]byte{}, v...)
		return false
	}); err != nil {
		return nil, nil, fmt.Errorf("iterate blocks: %w", err)
	}
	if chosenVal == nil {
		return nil, nil, ErrNoMoreElements
	}

	var b types.Block
	if err := decodeArtifact(chosenVal, &b); err != nil {
		return nil, nil, fmt.Errorf("decode block: %w", err)
	}
	if err := s.setReservation(blockReservationPrefix, chosenKey); err != nil {
		return nil, nil, ErrNoMoreElements
	}
	return &b, chosenKey, nil
}

// ReleaseBlock removes the reservation of a pending block so NextBlock
// returns it again.
func (s *Storage) ReleaseBlock(k []byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.deleteArtifact(blockReservationPrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return nil
}

// MarkBlockDone is called once a pending block is applied to the state.
// The block leaves the queue and its record is stored under the next block
// number, which is returned.
func (s *Storage) MarkBlockDone(k []byte, rec *BlockRecord) (uint64, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.deleteArtifact(blockReservationPrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("delete reservation: %w", err)
	}
	if err := s.deleteArtifact(pendingBlockPrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("delete pending block: %w", err)
	}
	number, err := s.lastBlockNumber()
	if err != nil {
		return 0, err
	}
	number++
	rec.Number = number
	if err := s.setArtifact(processedBlockPrefix, uint64Key(number), rec); err != nil {
		return 0, fmt.Errorf("store block record: %w", err)
	}
	log.Debugw("block stored", "number", number, "exchange", rec.ExchangeID, "transactions", rec.NumTransactions)
	return number, nil
}

// Block returns the record of a processed block, or ErrNotFound.
func (s *Storage) Block(number uint64) (*BlockRecord, error) {
	rec := &BlockRecord{}
	if err := s.getArtifact(processedBlockPrefix, uint64Key(number), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// LastBlock returns the record of the last processed block, or ErrNotFound
// if there is none.
func (s *Storage) LastBlock() (*BlockRecord, error) {
	number, err := s.lastBlockNumber()
	if err != nil {
		return nil, err
	}
	if number == 0 {
		return nil, ErrNotFound
	}
	return s.Block(number)
}

// ListBlocks returns the numbers of the processed blocks in order.
func (s *Storage) ListBlocks() ([]uint64, error) {
	keys, err := s.listArtifacts(processedBlockPrefix)
	if err != nil {
		return nil, err
	}
	numbers := make([]uint64, 0, len(keys))
	for _, k := range keys {
		numbers = append(numbers, binary.BigEndian.Uint64(k))
	}
	return numbers, nil
}

// CountPendingBlocks returns the number of blocks in the queue, reserved or
// not.
func (s *Storage) CountPendingBlocks() int {
	count := 0
	if err := prefixeddb.NewPrefixedReader(s.db, pendingBlockPrefix).Iterate(nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		log.Warnw("failed to count pending blocks", "error", err.Error())
	}
	return count
}

func (s *Storage) lastBlockNumber() (uint64, error) {
	keys, err := s.listArtifacts(processedBlockPrefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(keys[len(keys)-1]), nil
}
