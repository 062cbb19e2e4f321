package rpcserver

// Cluster (peer-to-peer) method registrations, §6.

import (
	"context"
	"encoding/json"

	"tx-orderer/core"
)

func decodeParams[T any](params json.RawMessage) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	err := json.Unmarshal(params, &v)
	return v, err
}

// RegisterClusterMethods wires the cluster-internal replication and
// leader-handoff surface onto s.
func RegisterClusterMethods(s *Server, app *core.AppState) {
	s.Register("sync_raw_transaction", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[core.SyncRawTransactionRequest](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode sync_raw_transaction", err)
		}
		return nil, app.SyncRawTransaction(req)
	})

	s.Register("sync_encrypted_transaction", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[core.SyncEncryptedTransactionRequest](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode sync_encrypted_transaction", err)
		}
		return nil, app.SyncEncryptedTransaction(req)
	})

	s.Register("sync_batch_creation", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[core.SyncBatchCreationRequest](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode sync_batch_creation", err)
		}
		return nil, app.SyncBatchCreation(req)
	})

	s.Register("sync_leader_tx_orderer", core.PriorityHigh, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[core.SyncLeaderTxOrdererRequest](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode sync_leader_tx_orderer", err)
		}
		return nil, app.SyncLeaderTxOrderer(req)
	})

	s.Register("sync_max_gas_limit", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[core.SyncMaxGasLimitRequest](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode sync_max_gas_limit", err)
		}
		return nil, app.SyncMaxGasLimit(req)
	})

	s.Register("set_leader_tx_orderer", core.PriorityHigh, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[core.SetLeaderTxOrdererRequest](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode set_leader_tx_orderer", err)
		}
		return nil, app.SetLeaderTxOrderer(ctx, req)
	})

	s.Register("get_raw_transaction_list", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getRawTransactionListParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_raw_transaction_list", err)
		}
		return app.GetRawTransactionList(ctx, req.RollupID, req.LeaderChangeMessage)
	})

	s.Register("get_raw_transaction_epoch_list", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getRawTransactionEpochListParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_raw_transaction_epoch_list", err)
		}
		return app.GetRawTransactionEpochList(ctx, req.RollupID)
	})

	s.Register("get_order_commitment_info", core.PriorityHigh, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getOrderCommitmentInfoParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_order_commitment_info", err)
		}
		commitment, ok, err := app.Commitments.Get(req.RollupID, req.BatchNumber, req.TransactionOrder)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, core.NewError(core.KindInvalidOrderCommitment, "no order commitment at this slot")
		}
		return commitment, nil
	})

	s.Register("send_end_signal", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[core.SendEndSignalRequest](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode send_end_signal", err)
		}
		return nil, app.SendEndSignal(req)
	})

	s.Register("add_mev_searcher_info", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[addMevSearcherParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode add_mev_searcher_info", err)
		}
		_, err = app.ClusterMeta.Mutate(req.ClusterID, func(m *core.ClusterMetadata) error {
			m.AddMevSearcher(req.Info)
			return nil
		})
		return nil, err
	})

	s.Register("remove_mev_searcher_info", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[removeMevSearcherParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode remove_mev_searcher_info", err)
		}
		_, err = app.ClusterMeta.Mutate(req.ClusterID, func(m *core.ClusterMetadata) error {
			m.RemoveMevSearcher(req.SearcherAddress)
			return nil
		})
		return nil, err
	})
}

type getRawTransactionListParams struct {
	RollupID            string
	LeaderChangeMessage core.LeaderChangeMessage
}

type getRawTransactionEpochListParams struct {
	RollupID string
}

type getOrderCommitmentInfoParams struct {
	RollupID         string
	BatchNumber      uint64
	TransactionOrder uint64
}

type addMevSearcherParams struct {
	ClusterID string
	Info      core.MevSearcherInfo
}

type removeMevSearcherParams struct {
	ClusterID       string
	SearcherAddress core.Address
}
