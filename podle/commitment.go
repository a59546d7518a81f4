// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package podle

import (
	"encoding/hex"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

var commitmentBucketName = []byte("cmtdata")

// CommitmentState records what happened to a commitment a taker
// generated: whether it was successfully revealed to a maker, or burned
// because the maker it was offered to rejected the run.
type CommitmentState int

const (
	// CommitmentUnused has been committed to but never revealed.
	CommitmentUnused CommitmentState = iota

	// CommitmentUsed was revealed and accepted by a maker.
	CommitmentUsed

	// CommitmentBurned was revealed but the session it was used in
	// failed, so the (utxo, index) pair must not be retried.
	CommitmentBurned
)

// Record is a taker-side commitment bookkeeping entry. It corresponds
// to the domain spec's "Commitment record" data model entry. Store does
// not persist Record values; it keeps only the CommitmentState of each
// (utxo, vout, index) in the "cmtdata" namespace of its walletdb
// database, which is what survives process restarts.
type Record struct {
	CommitmentHash Commitment
	NUMSIndex      int
	UTXO           chainhash.Hash
	Vout           uint32
	FirstUsedAt    int64
	State          CommitmentState
}

// Store tracks commitment usage across a process's lifetime for a single
// role (taker or maker). It is backed by a walletdb bucket so that
// concurrent writers (the single owner task described in the design
// notes) serialize through the database's own locking rather than an
// ad hoc file lock.
type Store struct {
	mu sync.Mutex
	db walletdb.DB
	ns walletdb.Namespace
}

// OpenStore opens (creating if necessary) a commitment store at path.
func OpenStore(path string) (*Store, error) {
	db, err := walletdb.Open("bdb", path)
	if err != nil {
		db, err = walletdb.Create("bdb", path)
		if err != nil {
			return nil, podleError(ErrMalformed, "failed to open commitment store", err)
		}
	}
	ns, err := db.Namespace(commitmentBucketName)
	if err != nil {
		db.Close()
		return nil, podleError(ErrMalformed, "failed to open commitment namespace", err)
	}
	return &Store{db: db, ns: ns}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordKey derives the storage key for a (utxo, index) pair: commitments are
// scoped per UTXO since the same private key reused against a different
// outpoint is a distinct commitment.
func recordKey(utxo chainhash.Hash, vout uint32, index int) []byte {
	k := utxo.String() + ":" + itoa(vout) + ":" + itoa(uint32(index))
	return []byte(k)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

// Lookup returns the recorded state for a commitment, if any has been
// recorded, and whether a record was found.
func (s *Store) Lookup(utxo chainhash.Hash, vout uint32, index int) (CommitmentState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		state CommitmentState
		found bool
	)
	err := s.ns.View(func(tx walletdb.Tx) error {
		v := tx.RootBucket().Get(recordKey(utxo, vout, index))
		if v == nil {
			return nil
		}
		found = true
		if len(v) > 0 {
			state = CommitmentState(v[0])
		}
		return nil
	})
	return state, found, err
}

// Record persists a commitment's state, overwriting any previous entry.
func (s *Store) Record(utxo chainhash.Hash, vout uint32, index int, state CommitmentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ns.Update(func(tx walletdb.Tx) error {
		return tx.RootBucket().Put(recordKey(utxo, vout, index), []byte{byte(state)})
	})
}

// NextUnusedIndex picks the first index in candidates whose (utxo, index)
// pair has not already been recorded as Used or Burned, implementing the
// taker-side half of the domain spec's retry logic (Scenario 4: index 0
// fails, fall back to index 1).
func (s *Store) NextUnusedIndex(utxo chainhash.Hash, vout uint32, candidates []int) (int, error) {
	for _, idx := range candidates {
		state, found, err := s.Lookup(utxo, vout, idx)
		if err != nil {
			return 0, err
		}
		if !found || state == CommitmentUnused {
			return idx, nil
		}
	}
	return 0, podleError(ErrRetriesExhausted,
		"no unused NUMS index remains in the acceptance set", nil)
}

// Blacklist is the maker-side, network-propagated commitment blacklist
// (cmtdata/commitmentlist): a commitment may be consumed as a reveal or a
// blacklist entry at most once per maker, network-wide, once the maker
// has broadcast !hp2 for it.
type Blacklist struct {
	mu sync.Mutex
	db walletdb.DB
	ns walletdb.Namespace
}

// OpenBlacklist opens (creating if necessary) a maker's commitment
// blacklist at path.
func OpenBlacklist(path string) (*Blacklist, error) {
	db, err := walletdb.Open("bdb", path)
	if err != nil {
		db, err = walletdb.Create("bdb", path)
		if err != nil {
			return nil, podleError(ErrMalformed, "failed to open blacklist", err)
		}
	}
	ns, err := db.Namespace([]byte("commitmentlist"))
	if err != nil {
		db.Close()
		return nil, podleError(ErrMalformed, "failed to open blacklist namespace", err)
	}
	return &Blacklist{db: db, ns: ns}, nil
}

// Close releases the underlying database handle.
func (b *Blacklist) Close() error {
	return b.db.Close()
}

// Contains reports whether a commitment has already been blacklisted.
func (b *Blacklist) Contains(c Commitment) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var present bool
	err := b.ns.View(func(tx walletdb.Tx) error {
		present = tx.RootBucket().Get(c[:]) != nil
		return nil
	})
	return present, err
}

// Add appends a commitment to the blacklist. It is idempotent: adding an
// already-present commitment is a no-op success, matching the "at most
// once" invariant (a maker that sees the same !hp2 broadcast twice from
// a flaky directory must not error).
func (b *Blacklist) Add(c Commitment) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ns.Update(func(tx walletdb.Tx) error {
		return tx.RootBucket().Put(c[:], []byte{1})
	})
}

// HexString is a debug helper for log lines.
func (c Commitment) HexString() string {
	return hex.EncodeToString(c[:])
}
