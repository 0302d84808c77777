package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/noah-isme/tutorly-api/internal/models"
)

// Key layout:
//
//	meta/seq                      last assigned sequence
//	acct/<n>:<account>/bal        running balance
//	acct/<n>:<account>/e/<seq>    entry, seq big-endian so iteration follows append order
//
// <n> is the byte length of the account id, so one account's prefix never
// covers keys of another account whose id extends it.
var seqKey = []byte("meta/seq")

// PebbleLedgerRepository stores the ledger in an embedded Pebble database.
// A batch holds the entries, the running balances and the sequence, and is
// committed with fsync.
type PebbleLedgerRepository struct {
	mu sync.Mutex
	db *pebble.DB
}

// OpenPebbleLedger opens (or creates) a ledger at dir. A nil fs uses the OS filesystem.
func OpenPebbleLedger(dir string, fs vfs.FS) (*PebbleLedgerRepository, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble ledger: %w", err)
	}
	return &PebbleLedgerRepository{db: db}, nil
}

// Close flushes and closes the database.
func (r *PebbleLedgerRepository) Close() error {
	return r.db.Close()
}

func accountPrefix(accountID string) string {
	return "acct/" + strconv.Itoa(len(accountID)) + ":" + accountID + "/"
}

func balanceKey(accountID string) []byte {
	return []byte(accountPrefix(accountID) + "bal")
}

func entryPrefix(accountID string) []byte {
	return []byte(accountPrefix(accountID) + "e/")
}

func entryKey(accountID string, seq int64) []byte {
	key := entryPrefix(accountID)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seq))
	return append(key, buf[:]...)
}

// prefixEnd returns the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (r *PebbleLedgerRepository) readInt(key []byte) (int64, error) {
	val, closer, err := r.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt value at %s", key)
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

func encodeInt(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

// Append stores every entry or none.
func (r *PebbleLedgerRepository) Append(_ context.Context, entries ...*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	balances := make(map[string]int64, len(entries))
	for _, e := range entries {
		balance, seen := balances[e.AccountID]
		if !seen {
			stored, err := r.readInt(balanceKey(e.AccountID))
			if err != nil {
				return fmt.Errorf("read balance %s: %w", e.AccountID, err)
			}
			balance = stored
		}
		balance += e.Amount
		if balance < 0 {
			return ErrInsufficientBalance
		}
		balances[e.AccountID] = balance
	}

	seq, err := r.readInt(seqKey)
	if err != nil {
		return fmt.Errorf("read ledger sequence: %w", err)
	}

	batch := r.db.NewBatch()
	defer batch.Close()
	assigned := make([]int64, len(entries))
	for i, e := range entries {
		seq++
		assigned[i] = seq
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode ledger entry: %w", err)
		}
		if err := batch.Set(entryKey(e.AccountID, seq), payload, nil); err != nil {
			return err
		}
	}
	for account, balance := range balances {
		if err := batch.Set(balanceKey(account), encodeInt(balance), nil); err != nil {
			return err
		}
	}
	if err := batch.Set(seqKey, encodeInt(seq), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit ledger batch: %w", err)
	}

	for i, e := range entries {
		e.Seq = assigned[i]
	}
	return nil
}

// Balance returns the running balance of an account.
func (r *PebbleLedgerRepository) Balance(_ context.Context, accountID string) (int64, error) {
	balance, err := r.readInt(balanceKey(accountID))
	if err != nil {
		return 0, fmt.Errorf("read balance %s: %w", accountID, err)
	}
	return balance, nil
}

// List returns account entries newest first.
func (r *PebbleLedgerRepository) List(_ context.Context, accountID string, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	prefix := entryPrefix(accountID)
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger iterator: %w", err)
	}
	defer iter.Close()

	out := make([]models.LedgerEntry, 0)
	for iter.Last(); iter.Valid(); iter.Prev() {
		var entry models.LedgerEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("decode ledger entry: %w", err)
		}
		key := iter.Key()
		entry.Seq = int64(binary.BigEndian.Uint64(key[len(key)-8:]))
		if !matchesEntry(filter, &entry) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return out, nil
}
