// Package journal keeps a local, append-only record of the phases an agent
// completed, one badger entry per closed round. The workflow never reads it
// back during execution: recovery is process restart, and the journal is what
// tells the operator where the previous attempt stopped.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/oraclemesh/go-oraclemesh/period"
)

var (
	entryPrefix = []byte("e/")
	seqKey      = []byte("seq")
)

// Entry is one recorded phase completion.
type Entry struct {
	Seq     uint64       `json:"seq"`
	Phase   period.Phase `json:"phase"`
	Summary string       `json:"summary"`
	At      time.Time    `json:"at"`
}

// Journal is a badger-backed phase record. Safe for concurrent use.
type Journal struct {
	db *badger.DB
}

// Open opens (or creates) a journal in dir.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal at %s: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

// Append records one completed phase.
func (j *Journal) Append(phase period.Phase, summary string) error {
	return j.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn)
		if err != nil {
			return err
		}
		entry := Entry{
			Seq:     seq,
			Phase:   phase,
			Summary: summary,
			At:      time.Now().UTC(),
		}
		raw, err := json.Marshal(&entry)
		if err != nil {
			return fmt.Errorf("encode journal entry: %w", err)
		}
		return txn.Set(entryKey(seq), raw)
	})
}

// Entries returns every recorded entry in append order.
func (j *Journal) Entries() ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = entryPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(entryPrefix); it.ValidForPrefix(entryPrefix); it.Next() {
			err := it.Item().Value(func(raw []byte) error {
				var entry Entry
				if err := json.Unmarshal(raw, &entry); err != nil {
					return fmt.Errorf("decode journal entry: %w", err)
				}
				out = append(out, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func nextSeq(txn *badger.Txn) (uint64, error) {
	seq := uint64(0)
	item, err := txn.Get(seqKey)
	switch {
	case err == badger.ErrKeyNotFound:
	case err != nil:
		return 0, fmt.Errorf("read journal sequence: %w", err)
	default:
		if err := item.Value(func(raw []byte) error {
			seq = binary.BigEndian.Uint64(raw)
			return nil
		}); err != nil {
			return 0, err
		}
	}
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], seq+1)
	if err := txn.Set(seqKey, next[:]); err != nil {
		return 0, fmt.Errorf("advance journal sequence: %w", err)
	}
	return seq, nil
}

func entryKey(seq uint64) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], seq)
	return key
}
