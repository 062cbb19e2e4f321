package core

import "testing"

func TestLocalSignerSignAndVerifyRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	signer, err := NewLocalSigner(key)
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}

	digest := HashLeaf([]byte("leader-change-message"))
	sig, err := signer.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := VerifySignature(digest, sig, signer.Address())
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify against signer's own address")
	}
}

func TestLocalSignerRejectsWrongSigner(t *testing.T) {
	keyA := make([]byte, 32)
	keyB := make([]byte, 32)
	for i := range keyA {
		keyA[i] = byte(i + 1)
		keyB[i] = byte(i + 2)
	}
	signerA, _ := NewLocalSigner(keyA)
	signerB, _ := NewLocalSigner(keyB)

	digest := HashLeaf([]byte("msg"))
	sig, err := signerA.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := VerifySignature(digest, sig, signerB.Address())
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Fatal("expected verification against the wrong address to fail")
	}
}

func TestVerifySignatureRejectsUnknownChainType(t *testing.T) {
	digest := HashLeaf([]byte("msg"))
	sig := Signature{Chain: "unknown", Bytes: []byte("x")}
	_, err := VerifySignature(digest, sig, Address{})
	if err == nil {
		t.Fatal("expected an error for an unknown chain type")
	}
	if kind, _ := KindOf(err); kind != KindInvalidOrderCommitment {
		t.Fatalf("kind = %v, want KindInvalidOrderCommitment", kind)
	}
}
