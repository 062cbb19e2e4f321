package core

// OrderCommitment (spec §3, §4.3 step 7): the leader's acknowledgment that a
// transaction occupies a specific (batch_number, transaction_order), either
// a bare hash or a signed struct over the canonical encoding.

import (
	"encoding/binary"
)

// OrderCommitmentData is the signed form's payload, also used standalone as
// the §6 wire shape OrderCommitmentData.
type OrderCommitmentData struct {
	RollupID         string
	BatchNumber      uint64
	TransactionOrder uint64
	TransactionHash  [32]byte
	PreMerklePath    [][32]byte
}

// CanonicalEncoding returns the byte string a signature is computed over:
// every field except the signature itself, in field order.
func (d OrderCommitmentData) CanonicalEncoding() []byte {
	buf := make([]byte, 0, len(d.RollupID)+8+8+32+len(d.PreMerklePath)*32)
	buf = append(buf, []byte(d.RollupID)...)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], d.BatchNumber)
	buf = append(buf, n[:]...)
	binary.BigEndian.PutUint64(n[:], d.TransactionOrder)
	buf = append(buf, n[:]...)
	buf = append(buf, d.TransactionHash[:]...)
	for _, sib := range d.PreMerklePath {
		buf = append(buf, sib[:]...)
	}
	return buf
}

// OrderCommitment is either a bare transaction hash (order_commitment_type =
// TransactionHash) or a signed OrderCommitmentData (order_commitment_type =
// Sign).
type OrderCommitment struct {
	Kind OrderCommitmentType

	Hash *[32]byte

	Data      *OrderCommitmentData
	Signature *Signature
}

// NewHashCommitment builds the bare-hash variant.
func NewHashCommitment(hash [32]byte) OrderCommitment {
	return OrderCommitment{Kind: OrderCommitmentTransactionHash, Hash: &hash}
}

// NewSignedCommitment builds the signed variant over data, signed by signer.
func NewSignedCommitment(data OrderCommitmentData, signer Signer) (OrderCommitment, error) {
	digest := HashLeaf(data.CanonicalEncoding())
	sig, err := signer.Sign(digest)
	if err != nil {
		return OrderCommitment{}, WrapError(KindInvalidOrderCommitment, "sign order commitment", err)
	}
	return OrderCommitment{Kind: OrderCommitmentSign, Data: &data, Signature: &sig}, nil
}

// Verify checks a signed commitment's signature against expectedSigner. It
// is a no-op (always true) for the bare-hash variant, which carries no
// signature to verify.
func (c OrderCommitment) Verify(expectedSigner Address) (bool, error) {
	if c.Kind == OrderCommitmentTransactionHash {
		return true, nil
	}
	if c.Data == nil || c.Signature == nil {
		return false, NewError(KindInvalidOrderCommitment, "signed commitment missing data or signature")
	}
	digest := HashLeaf(c.Data.CanonicalEncoding())
	return VerifySignature(digest, *c.Signature, expectedSigner)
}
