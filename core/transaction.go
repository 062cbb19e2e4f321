package core

// RawTransaction and EncryptedTransaction sum types (spec §3), plus the
// hashing rules that feed the Merkle engine and the OrderCommitment.
//
// The EthRawTransaction duality is resolved in favor of the struct form
// (epoch / current_leader_tx_orderer_address as named fields), the only form
// produced. DecodeRawTransaction also accepts the legacy positional-tuple
// JSON form; the RPC handlers decode params straight into the struct form
// and do not call it, so legacy-form requests are not accepted over RPC.

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// RawTransactionVariant tags which RawTransaction case is present.
type RawTransactionVariant string

const (
	RawTransactionVariantEth       RawTransactionVariant = "Eth"
	RawTransactionVariantEthBundle RawTransactionVariant = "EthBundle"
)

// RawTransaction is the sum type from spec §3: Eth carries leader-populated
// epoch/leader fields; EthBundle is a bare RLP-encoded transaction.
type RawTransaction struct {
	Variant RawTransactionVariant

	// RawRLP is the RLP-encoded transaction bytes, present for both variants.
	RawRLP []byte

	// Eth-only fields, populated by the leader at ingest time (§4.3 step 1).
	Epoch                         *uint64
	CurrentLeaderTxOrdererAddress *Address
}

// legacyEthRawTransaction is the positional-tuple wire form read by
// DecodeRawTransaction.
type legacyEthRawTransaction []string

// DecodeRawTransaction accepts either the authoritative struct-form JSON or
// the legacy positional-tuple JSON array and normalizes to RawTransaction.
func DecodeRawTransaction(data []byte) (RawTransaction, error) {
	var rt RawTransaction
	if err := json.Unmarshal(data, &rt); err == nil && rt.RawRLP != nil {
		return rt, nil
	}

	var legacy legacyEthRawTransaction
	if err := json.Unmarshal(data, &legacy); err != nil {
		return RawTransaction{}, WrapError(KindDeserialize, "decode raw transaction", err)
	}
	if len(legacy) == 0 {
		return RawTransaction{}, NewError(KindDeserialize, "legacy raw transaction tuple is empty")
	}
	return RawTransaction{Variant: RawTransactionVariantEth, RawRLP: []byte(legacy[0])}, nil
}

// Hash returns the Keccak-256 hash of the RLP-decoded transaction per chain
// rules, used as the Merkle leaf and as the transaction's lookup key.
func (rt RawTransaction) Hash() ([32]byte, error) {
	var tx types.Transaction
	if err := rlp.DecodeBytes(rt.RawRLP, &tx); err != nil {
		return [32]byte{}, WrapError(KindInvalidTransaction, "rlp decode raw transaction", err)
	}
	return tx.Hash(), nil
}

// EncryptedTransactionVariant tags which EncryptedTransaction case is
// present; only Skde is currently implemented (spec §3).
type EncryptedTransactionVariant string

const (
	EncryptedTransactionVariantSkde EncryptedTransactionVariant = "Skde"
)

// EncryptedTransaction carries ciphertext pending decryption by the
// decryptor adapter (C9).
type EncryptedTransaction struct {
	Variant    EncryptedTransactionVariant
	KeyID      string
	OpenData   []byte
	Ciphertext []byte
}

// RawTransactionHash returns a deterministic hash of the encrypted payload,
// used as the Merkle leaf before decryption makes the real transaction hash
// available (spec §4.4: "stable across decryption").
func (et EncryptedTransaction) RawTransactionHash() [32]byte {
	buf := append(append([]byte(nil), []byte(et.KeyID)...), et.Ciphertext...)
	return HashLeaf(buf)
}
