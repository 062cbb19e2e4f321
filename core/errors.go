package core

// Error kinds used across the ordering service. Handlers return these to
// JSON-RPC callers as a stable tag under the error's `data.kind` field;
// background tasks log and retry instead of propagating them.

import (
	"errors"
	"fmt"
)

// Kind tags an Error with a stable, wire-stable identifier so RPC clients can
// branch on failure type without string-matching messages.
type Kind string

const (
	KindRollupNotFound            Kind = "RollupNotFound"
	KindClusterNotFound            Kind = "ClusterNotFound"
	KindClusterMetadataNotFound    Kind = "ClusterMetadataNotFound"
	KindTxOrdererInfoNotFound      Kind = "TxOrdererInfoNotFound"
	KindSignerNotFound             Kind = "SignerNotFound"
	KindEmptyLeader                Kind = "EmptyLeader"
	KindEmptyLeaderClusterRpcUrl   Kind = "EmptyLeaderClusterRpcUrl"
	KindInvalidOrderCommitment     Kind = "InvalidOrderCommitment"
	KindInvalidTransaction         Kind = "InvalidTransaction"
	KindUnsupportedEncryptedMempool Kind = "UnsupportedEncryptedMempool"
	KindMerkleTreeDoesNotExist     Kind = "MerkleTreeDoesNotExist"
	KindDatabase                   Kind = "Database"
	KindRpcClient                  Kind = "RpcClient"
	KindDecryption                  Kind = "Decryption"
	KindDeserialize                 Kind = "Deserialize"
	KindHealthCheck                 Kind = "HealthCheck"
)

// Error is the tagged error type returned by every exported core operation.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a tagged error with no underlying cause.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// WrapError tags an existing error with a Kind, preserving it as the cause.
func WrapError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}
