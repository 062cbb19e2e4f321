package core

import "context"

// RPCKeySource is the default KeySource (C9): it polls an external
// key-generation service's JSON-RPC endpoint for the latest released
// decryption key, the way RPCClient polls any other peer (§4.9).
type RPCKeySource struct {
	client RPCClient
	url    string
}

// NewRPCKeySource builds a KeySource against a key-generation service
// reachable at url.
func NewRPCKeySource(client RPCClient, url string) *RPCKeySource {
	return &RPCKeySource{client: client, url: url}
}

type getDecryptionKeyParams struct {
	LastSeenKeyID string `json:"last_seen_key_id"`
}

type getDecryptionKeyResult struct {
	KeyID string `json:"key_id"`
	Key   []byte `json:"key"`
	Found bool   `json:"found"`
}

// PollLatest implements KeySource.
func (s *RPCKeySource) PollLatest(ctx context.Context, lastSeenKeyID string) (DecryptionKey, bool, error) {
	if s.url == "" {
		return DecryptionKey{}, false, nil
	}
	var res getDecryptionKeyResult
	err := s.client.Request(ctx, s.url, "get_decryption_key", getDecryptionKeyParams{LastSeenKeyID: lastSeenKeyID}, &res)
	if err != nil {
		return DecryptionKey{}, false, err
	}
	if !res.Found {
		return DecryptionKey{}, false, nil
	}
	return DecryptionKey{KeyID: res.KeyID, Key: res.Key}, true, nil
}
