package core

// Typed KV store facade (C2): a single embedded store (badger) for every
// persisted record, keyed by byte-encoded tuples, with an optimistic
// single-writer lock per key so concurrent writers to the same key block
// instead of racing. Readers always see the last committed value.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// KVStore wraps a single badger.DB with typed, JSON-encoded get/put and a
// per-key write lock.
type KVStore struct {
	db  *badger.DB
	log *logrus.Logger

	keyLocksMu sync.Mutex
	keyLocks   map[string]*sync.Mutex
}

// OpenKVStore opens (creating if absent) the embedded store under dir.
func OpenKVStore(dir string, log *logrus.Logger) (*KVStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, WrapError(KindDatabase, "open kv store", err)
	}
	return &KVStore{db: db, log: log, keyLocks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying database handle.
func (s *KVStore) Close() error {
	if err := s.db.Close(); err != nil {
		return WrapError(KindDatabase, "close kv store", err)
	}
	return nil
}

// EncodeKey joins a product-tuple key into a single byte-encoded key, in the
// spirit of spec §4.8's `(table_tag, rollup_id, batch_number, ...)` tuples.
func EncodeKey(parts ...interface{}) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(0)
		}
		fmt.Fprintf(&buf, "%v", p)
	}
	return buf.Bytes()
}

// Put serializes value as JSON and writes it under key, overwriting any
// existing value.
func (s *KVStore) Put(key []byte, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return WrapError(KindDeserialize, "marshal kv value", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
	if err != nil {
		return WrapError(KindDatabase, "put kv value", err)
	}
	return nil
}

// Get reads key into out (a pointer), returning (false, nil) if key is
// absent.
func (s *KVStore) Get(key []byte, out interface{}) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return false, WrapError(KindDatabase, "get kv value", err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, WrapError(KindDeserialize, "unmarshal kv value", err)
	}
	return true, nil
}

// Has reports whether key exists.
func (s *KVStore) Has(key []byte) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, WrapError(KindDatabase, "check kv key", err)
	}
	return found, nil
}

// Delete removes key, if present.
func (s *KVStore) Delete(key []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return WrapError(KindDatabase, "delete kv value", err)
	}
	return nil
}

// keyLock returns the mutex guarding key, creating it on first use.
func (s *KVStore) keyLock(key []byte) *sync.Mutex {
	s.keyLocksMu.Lock()
	defer s.keyLocksMu.Unlock()
	k := string(key)
	l, ok := s.keyLocks[k]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[k] = l
	}
	return l
}

// MutHandle is the scoped handle returned by GetMut: the caller mutates
// Value in place and must call Update to persist it, or Release to discard
// changes and unlock without writing.
type MutHandle struct {
	store   *KVStore
	key     []byte
	lock    *sync.Mutex
	Value   json.RawMessage
	applied bool
}

// GetMut acquires the per-key write lock for key and returns a handle over
// its current raw value (nil if absent). Only one GetMut may be outstanding
// per key at a time; other writers block until Update or Release.
func (s *KVStore) GetMut(key []byte) (*MutHandle, error) {
	lock := s.keyLock(key)
	lock.Lock()

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		lock.Unlock()
		return nil, WrapError(KindDatabase, "get-mut kv value", err)
	}
	return &MutHandle{store: s, key: key, lock: lock, Value: raw}, nil
}

// Update persists h.Value and releases the write lock.
func (h *MutHandle) Update() error {
	if h.applied {
		return nil
	}
	h.applied = true
	defer h.lock.Unlock()
	err := h.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(h.key, h.Value)
	})
	if err != nil {
		return WrapError(KindDatabase, "update kv value", err)
	}
	return nil
}

// Release discards any in-memory changes and unlocks without writing.
func (h *MutHandle) Release() {
	if h.applied {
		return
	}
	h.applied = true
	h.lock.Unlock()
}
