package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is the shipped Adapter implementation, backed by a local
// BadgerDB. The HTTP side of the product owns the canonical collections; the
// hub reads projections of them and writes the few records it owns
// (presence, call log).
//
// Key layout:
//
//	presence:<uid>                  -> PresenceRecord
//	call:<id>                       -> CallRecord
//	profile:<uid>                   -> Profile
//	member:<kind>:<rid>:<uid>       -> marker
//	friend:<uid>:<fid>              -> marker
//	memory:<uid>:<unixnano>:<id>    -> Memory
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	return &BadgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "badger_store")),
	}
}

var _ Adapter = (*BadgerStore)(nil)

// Open opens (or creates) the hub's datastore directory.
func Open(dir string, inMemory bool, logger *slog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	logger.Info("Datastore opened", slog.String("dir", dir), slog.Bool("inMemory", inMemory))
	return db, nil
}

func presenceKey(userID string) []byte { return []byte("presence:" + userID) }
func callKey(callID string) []byte     { return []byte("call:" + callID) }
func profileKey(userID string) []byte  { return []byte("profile:" + userID) }

func memberKey(kind, resourceID, userID string) []byte {
	return []byte(fmt.Sprintf("member:%s:%s:%s", kind, resourceID, userID))
}

func friendPrefix(userID string) []byte { return []byte("friend:" + userID + ":") }

func memoryPrefix(userID string) []byte { return []byte("memory:" + userID + ":") }

func memoryKey(m Memory) []byte {
	return []byte(fmt.Sprintf("memory:%s:%d:%s", m.OwnerID, m.CreatedAt.UnixNano(), m.ID))
}

func (s *BadgerStore) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) getJSON(key []byte, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, v)
		})
	})
}

func (s *BadgerStore) SetUserOnline(ctx context.Context, userID string, online bool, lastActive time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := PresenceRecord{UserID: userID, Online: online, LastActive: lastActive}
	return s.setJSON(presenceKey(userID), rec)
}

func (s *BadgerStore) UpsertCall(ctx context.Context, rec CallRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.setJSON(callKey(rec.ID), rec)
}

// GetCall reads a persisted call record. Used by tests and the dead-letter
// inspection path; not part of the Adapter interface.
func (s *BadgerStore) GetCall(callID string) (CallRecord, error) {
	var rec CallRecord
	err := s.getJSON(callKey(callID), &rec)
	return rec, err
}

// GetPresence reads the durable presence flag.
func (s *BadgerStore) GetPresence(userID string) (PresenceRecord, error) {
	var rec PresenceRecord
	err := s.getJSON(presenceKey(userID), &rec)
	return rec, err
}

func (s *BadgerStore) CallerProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	if err := ctx.Err(); err != nil {
		return p, err
	}
	err := s.getJSON(profileKey(userID), &p)
	return p, err
}

// PutProfile is the projection write used by the HTTP side when a user
// document changes.
func (s *BadgerStore) PutProfile(userID string, p Profile) error {
	return s.setJSON(profileKey(userID), p)
}

func (s *BadgerStore) ResourceMembership(ctx context.Context, kind, resourceID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(kind, resourceID, userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// PutMembership records that a user belongs to a resource.
func (s *BadgerStore) PutMembership(kind, resourceID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(memberKey(kind, resourceID, userID), []byte{1})
	})
}

// DeleteMembership removes a user from a resource.
func (s *BadgerStore) DeleteMembership(kind, resourceID, userID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(memberKey(kind, resourceID, userID))
	})
}

func (s *BadgerStore) Friends(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := friendPrefix(userID)
	var friends []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // keys are enough
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			friends = append(friends, string(key[len(prefix):]))
		}
		return nil
	})
	return friends, err
}

// PutFriend records a friendship edge (directional; the HTTP side writes
// both directions).
func (s *BadgerStore) PutFriend(userID, friendID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("friend:"+userID+":"+friendID), []byte{1})
	})
}

func (s *BadgerStore) Memories(ctx context.Context, userID string, includeViewed bool, limit int) ([]Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := memoryPrefix(userID)
	var memories []Memory
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(memories) >= limit {
				break
			}
			err := it.Item().Value(func(data []byte) error {
				var m Memory
				if err := json.Unmarshal(data, &m); err != nil {
					return fmt.Errorf("corrupt memory record: %w", err)
				}
				if !includeViewed && m.Viewed {
					return nil
				}
				memories = append(memories, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return memories, err
}

// PutMemory stores a memory record for a user.
func (s *BadgerStore) PutMemory(m Memory) error {
	return s.setJSON(memoryKey(m), m)
}

func (s *BadgerStore) MarkMemoryViewed(ctx context.Context, userID, memoryID string) error {
	return s.updateMemory(ctx, userID, memoryID, func(m *Memory) {
		m.Viewed = true
	})
}

func (s *BadgerStore) ShareMemory(ctx context.Context, userID, memoryID string) (Memory, error) {
	var shared Memory
	err := s.updateMemory(ctx, userID, memoryID, func(m *Memory) {
		m.SharedCount++
		shared = *m
	})
	return shared, err
}

// updateMemory scans the user's memory prefix for the record and rewrites it
// in place. Per-user memory sets are small, so a prefix scan beats keeping a
// secondary index in sync.
func (s *BadgerStore) updateMemory(ctx context.Context, userID, memoryID string, mutate func(*Memory)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := memoryPrefix(userID)
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var m Memory
			err := item.Value(func(data []byte) error {
				return json.Unmarshal(data, &m)
			})
			if err != nil {
				return err
			}
			if m.ID != memoryID {
				continue
			}
			mutate(&m)
			data, err := json.Marshal(m)
			if err != nil {
				return err
			}
			return txn.Set(item.KeyCopy(nil), data)
		}
		return ErrNotFound
	})
}
