package core

// Chain-typed signature verification. The Ethereum path recovers the signer
// address from a 65-byte [R || S || V] signature exactly as go-ethereum's
// transaction pool does; the "sign" order-commitment path (cluster messages
// such as LeaderChangeMessage and BatchCreationMessage) is verified against
// the decred secp256k1 implementation instead, so two independently
// maintained curve implementations are exercised the way the original's
// chain-typed signature abstraction implies.

import (
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	decredecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces and verifies chain-typed signatures over a canonical
// message digest.
type Signer interface {
	// Address returns the address this signer signs as.
	Address() Address
	// Sign returns a Signature over digest.
	Sign(digest [32]byte) (Signature, error)
}

// VerifySignature checks sig against digest and expectedSigner, dispatching
// on sig.Chain.
func VerifySignature(digest [32]byte, sig Signature, expectedSigner Address) (bool, error) {
	switch sig.Chain {
	case ChainTypeEthereum:
		return verifyEthereum(digest, sig.Bytes, expectedSigner)
	case ChainTypeLocal:
		return verifyDecredSecp256k1(digest, sig.Bytes, expectedSigner)
	default:
		return false, NewError(KindInvalidOrderCommitment, "unknown signature chain type")
	}
}

func verifyEthereum(digest [32]byte, sig []byte, expected Address) (bool, error) {
	if len(sig) != 65 {
		return false, NewError(KindInvalidOrderCommitment, "ethereum signature must be 65 bytes")
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return false, WrapError(KindInvalidOrderCommitment, "recover signer", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	var want [20]byte
	copy(want[:], recovered[:])
	return want == expected.Bytes, nil
}

// verifyDecredSecp256k1 verifies a DER-encoded secp256k1 signature plus the
// uncompressed public key concatenated after it ([DER sig || 65-byte pubkey]),
// used for cluster-internal message authentication.
func verifyDecredSecp256k1(digest [32]byte, sigAndPub []byte, expected Address) (bool, error) {
	if len(sigAndPub) < 65 {
		return false, NewError(KindInvalidOrderCommitment, "signature+pubkey payload too short")
	}
	split := len(sigAndPub) - 65
	derSig := sigAndPub[:split]
	pubBytes := sigAndPub[split:]

	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false, WrapError(KindInvalidOrderCommitment, "parse public key", err)
	}
	sig, err := decredecdsa.ParseDERSignature(derSig)
	if err != nil {
		return false, WrapError(KindInvalidOrderCommitment, "parse signature", err)
	}
	if !sig.Verify(digest[:], pub) {
		return false, nil
	}

	addr, err := AddressFromSecp256k1Pubkey(pub)
	if err != nil {
		return false, err
	}
	return addr.Equal(expected), nil
}

// AddressFromSecp256k1Pubkey derives a local-chain address as the low 20
// bytes of Keccak-256(uncompressed pubkey X||Y), mirroring Ethereum's address
// derivation but tagged ChainTypeLocal to keep the two verification stacks
// distinct.
func AddressFromSecp256k1Pubkey(pub *secp256k1.PublicKey) (Address, error) {
	raw := pub.SerializeUncompressed()[1:] // drop the 0x04 prefix
	hash := crypto.Keccak256(raw)
	return NewAddress(ChainTypeLocal, hash[12:])
}

// localSigner is a *secp256k1.PrivateKey-backed Signer using the decred
// secp256k1 stack, used by nodes to sign cluster messages.
type localSigner struct {
	priv *secp256k1.PrivateKey
	addr Address
}

// NewLocalSigner builds a Signer from a raw secp256k1 private key.
func NewLocalSigner(raw []byte) (Signer, error) {
	priv := secp256k1.PrivKeyFromBytes(raw)
	addr, err := AddressFromSecp256k1Pubkey(priv.PubKey())
	if err != nil {
		return nil, err
	}
	return &localSigner{priv: priv, addr: addr}, nil
}

func (s *localSigner) Address() Address { return s.addr }

func (s *localSigner) Sign(digest [32]byte) (Signature, error) {
	sig := decredecdsa.Sign(s.priv, digest[:])
	der := sig.Serialize()
	pub := s.priv.PubKey().SerializeUncompressed()
	payload := append(append([]byte(nil), der...), pub...)
	return Signature{Chain: ChainTypeLocal, Bytes: payload}, nil
}
