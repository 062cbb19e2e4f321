package rpcserver

// Internal operator method registrations, §6: cluster and rollup
// registration, and the read-back surface used by operators and dashboards.

import (
	"context"
	"encoding/json"

	"tx-orderer/core"
)

// RegisterInternalMethods wires the control-plane operator surface onto s.
func RegisterInternalMethods(s *Server, app *core.AppState) {
	s.Register("add_cluster", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[addClusterParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode add_cluster", err)
		}
		c := core.NewCluster(req.ClusterID, req.BlockMargin)
		for idx, info := range req.TxOrdererRpcInfos {
			c.RegisterTxOrderer(idx, info)
		}
		return nil, app.Operator.AddCluster(c)
	})

	s.Register("add_rollup", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[core.Rollup](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode add_rollup", err)
		}
		return nil, app.Operator.AddRollup(req)
	})

	s.Register("get_cluster", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getClusterParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_cluster", err)
		}
		return app.Operator.GetCluster(req.ClusterID)
	})

	s.Register("get_sequencing_infos", core.PriorityNormal, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		req, err := decodeParams[getClusterParams](params)
		if err != nil {
			return nil, core.WrapError(core.KindDeserialize, "decode get_sequencing_infos", err)
		}
		return app.Operator.GetSequencingInfos(req.ClusterID)
	})
}

type addClusterParams struct {
	ClusterID         string
	BlockMargin       uint64
	TxOrdererRpcInfos map[int]core.TxOrdererRpcInfo
}

type getClusterParams struct {
	ClusterID string
}
