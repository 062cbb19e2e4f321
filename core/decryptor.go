package core

// Decryptor adapter (C9). Maintains a queue of encrypted transactions
// grouped by key_id and a polling loop against a key-generation service.
// The actual decryption math (SKDE) is an external collaborator per §1; this
// adapter is built against a pluggable KeySource/Cipher interface, satisfied
// here by a deterministic stub cipher.

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DecryptionKey is a key released by the external key-generation service,
// identified by KeyID.
type DecryptionKey struct {
	KeyID string
	Key   []byte
}

// KeySource polls (or subscribes to) the external key-generation service.
// PollLatest returns the most recently released key, or ok=false if none is
// newer than lastSeenKeyID.
type KeySource interface {
	PollLatest(ctx context.Context, lastSeenKeyID string) (DecryptionKey, bool, error)
}

// Cipher decrypts an EncryptedTransaction's ciphertext given its key,
// producing the RLP bytes of the recovered raw transaction.
type Cipher interface {
	Decrypt(et EncryptedTransaction, key DecryptionKey) ([]byte, error)
}

// StubCipher is a deterministic placeholder satisfying the Cipher
// interface: it XORs the ciphertext with the key (repeated to length),
// standing in for the real SKDE decryption math, which is out of scope
// per §1.
type StubCipher struct{}

// Decrypt implements Cipher.
func (StubCipher) Decrypt(et EncryptedTransaction, key DecryptionKey) ([]byte, error) {
	if len(key.Key) == 0 {
		return nil, NewError(KindDecryption, "empty decryption key")
	}
	out := make([]byte, len(et.Ciphertext))
	for i, b := range et.Ciphertext {
		out[i] = b ^ key.Key[i%len(key.Key)]
	}
	return out, nil
}

// pendingSlot is one encrypted transaction awaiting decryption at a
// reserved (rollup_id, batch, order).
type pendingSlot struct {
	rollupID string
	batch    uint64
	order    uint64
	et       EncryptedTransaction
}

// Decryptor runs the background decryption loop described in §4.9.
type Decryptor struct {
	log    *logrus.Logger
	source KeySource
	cipher Cipher

	rawTx    *RawTransactionStore
	provide  func(rollupID string, batch, order uint64)

	mu                sync.Mutex
	latestKeyID       string
	pendingByKey      map[string][]pendingSlot
}

// NewDecryptor wires the decryptor against its key source, cipher, raw
// transaction store, and a callback invoked when a slot becomes providable.
func NewDecryptor(log *logrus.Logger, source KeySource, cipher Cipher, rawTx *RawTransactionStore, onProvidable func(rollupID string, batch, order uint64)) *Decryptor {
	return &Decryptor{
		log:          log,
		source:       source,
		cipher:       cipher,
		rawTx:        rawTx,
		provide:      onProvidable,
		pendingByKey: make(map[string][]pendingSlot),
	}
}

// Enqueue reserves (rollupID, batch, order) for et, to be resolved once its
// key_id's key arrives.
func (d *Decryptor) Enqueue(rollupID string, batch, order uint64, et EncryptedTransaction) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pendingByKey[et.KeyID] = append(d.pendingByKey[et.KeyID], pendingSlot{
		rollupID: rollupID, batch: batch, order: order, et: et,
	})
}

// Run polls the key source until ctx is cancelled, decrypting each bucket of
// pending transactions as its key arrives. A failed poll is logged and the
// loop keeps going; Run returns only when ctx is done.
func (d *Decryptor) Run(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.pollOnce(ctx)
		}
	}
}

func (d *Decryptor) pollOnce(ctx context.Context) {
	d.mu.Lock()
	lastSeen := d.latestKeyID
	d.mu.Unlock()

	key, ok, err := d.source.PollLatest(ctx, lastSeen)
	if err != nil {
		if d.log != nil {
			d.log.WithError(err).Warn("decryptor key poll failed")
		}
		return
	}
	if !ok {
		return
	}

	d.mu.Lock()
	d.latestKeyID = key.KeyID
	slots := d.pendingByKey[key.KeyID]
	delete(d.pendingByKey, key.KeyID)
	d.mu.Unlock()

	for _, slot := range slots {
		d.resolve(slot, key)
	}
}

func (d *Decryptor) resolve(slot pendingSlot, key DecryptionKey) {
	rawRLP, err := d.cipher.Decrypt(slot.et, key)
	if err != nil {
		if d.log != nil {
			d.log.WithFields(logrus.Fields{
				"rollup_id": slot.rollupID, "batch": slot.batch, "order": slot.order,
			}).WithError(err).Warn("decryption failed, slot left unprovidable")
		}
		return
	}
	raw := RawTransaction{Variant: RawTransactionVariantEth, RawRLP: rawRLP}
	if err := d.rawTx.Put(slot.rollupID, slot.batch, slot.order, raw, false); err != nil {
		if d.log != nil {
			d.log.WithError(err).Error("persisting decrypted raw transaction failed")
		}
		return
	}
	if d.provide != nil {
		d.provide(slot.rollupID, slot.batch, slot.order)
	}
}
