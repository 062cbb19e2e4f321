package rpcserver

// External (clients, executors) method registrations, §6: transaction
// submission and the read-back surface used by rollup nodes, block
// explorers, and executors outside the cluster.

import (
	"context"
	"encoding/json"

	"tx-orderer/core"
)

// RegisterExternalMethods wires the client/executor-facing surface onto s.
func RegisterExternalMethods(s *Server, app *core.AppState) {
	s.Register("send_raw_transaction", core.PriorityHigh, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[sendRawTransactionParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode send_raw_transaction", err)
		}
		return app.SendRawTransaction(ctx, req.RollupID, req.Raw)
	})

	s.Register("send_encrypted_transaction", core.PriorityHigh, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[sendEncryptedTransactionParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode send_encrypted_transaction", err)
		}
		return app.SendEncryptedTransaction(ctx, req.RollupID, req.Enc)
	})

	s.Register("get_batch", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getBatchParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_batch", err)
		}
		return app.GetBatch(req.RollupID, req.BatchNumber)
	})

	s.Register("get_raw_transaction_list", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getRawTransactionRangeParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_raw_transaction_list", err)
		}
		return app.GetRawTransactionRange(ctx, req.RollupID, req.FromBatch, req.FromOrder, req.Limit)
	})

	s.Register("get_raw_transaction_with_order_commitment", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[slotParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_raw_transaction_with_order_commitment", err)
		}
		return app.GetRawTransactionWithOrderCommitment(req.RollupID, req.BatchNumber, req.TransactionOrder)
	})

	s.Register("get_encrypted_transaction_with_order_commitment", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[slotParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_encrypted_transaction_with_order_commitment", err)
		}
		return app.GetEncryptedTransactionWithOrderCommitment(req.RollupID, req.BatchNumber, req.TransactionOrder)
	})

	s.Register("get_encrypted_transaction_list", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getBatchParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_encrypted_transaction_list", err)
		}
		return app.GetEncryptedTransactionList(req.RollupID, req.BatchNumber)
	})

	s.Register("get_post_merkle_path", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[slotParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_post_merkle_path", err)
		}
		return app.GetPostMerklePath(req.RollupID, req.BatchNumber, req.TransactionOrder)
	})

	s.Register("get_can_provide_transaction_info", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getBatchParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_can_provide_transaction_info", err)
		}
		return app.GetCanProvideTransactionInfo(req.RollupID, req.BatchNumber), nil
	})

	s.Register("get_cluster_metadata", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getClusterMetadataParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_cluster_metadata", err)
		}
		return app.GetClusterMetadata(req.ClusterID)
	})

	s.Register("set_max_gas_limit", core.PriorityHigh, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[setMaxGasLimitParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode set_max_gas_limit", err)
		}
		return nil, app.SetMaxGasLimit(req.RollupID, req.MaxGasLimit, req.Signature)
	})
}

type sendRawTransactionParams struct {
	RollupID string
	Raw      core.RawTransaction
}

type sendEncryptedTransactionParams struct {
	RollupID string
	Enc      core.EncryptedTransaction
}

type getBatchParams struct {
	RollupID    string
	BatchNumber uint64
}

type getRawTransactionRangeParams struct {
	RollupID  string
	FromBatch uint64
	FromOrder uint64
	Limit     int
}

type slotParams struct {
	RollupID         string
	BatchNumber      uint64
	TransactionOrder uint64
}

type getClusterMetadataParams struct {
	ClusterID string
}

type setMaxGasLimitParams struct {
	RollupID    string
	MaxGasLimit uint64
	Signature   core.Signature
}
