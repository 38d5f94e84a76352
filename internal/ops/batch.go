package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattjoyce/scenebridge/internal/registry"
)

// batchable lists the commands batch_operations may run.
var batchable = map[string]bool{
	"actor_spawn":     true,
	"actor_modify":    true,
	"actor_delete":    true,
	"actor_duplicate": true,
	"viewport_camera": true,
}

type BatchOp struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params"`
}

type batchOpsParams struct {
	Operations []BatchOp `json:"operations" cmd:"required"`
}

type BatchOpResult struct {
	ID        string `json:"id,omitempty"`
	Operation string `json:"operation"`
	Success   bool   `json:"success"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

type BatchOpsResult struct {
	Success         bool            `json:"success"`
	Results         []BatchOpResult `json:"results"`
	SuccessCount    int             `json:"successCount"`
	FailureCount    int             `json:"failureCount"`
	ExecutionTimeMs float64         `json:"executionTimeMs"`
}

func (h *handlers) registerBatch(reg *registry.Registry) error {
	return registry.Register(reg, registry.Spec{
		Name: "batch_operations", Category: "batch", Aliases: []string{"batch.operations"},
		Description: "Run several actor or viewport commands with a single view refresh",
	}, h.batchOperations)
}

func (h *handlers) batchOperations(ctx context.Context, p batchOpsParams) (any, error) {
	if len(p.Operations) == 0 {
		return nil, fmt.Errorf("operations is empty")
	}
	start := time.Now()
	res := &BatchOpsResult{Results: make([]BatchOpResult, 0, len(p.Operations))}

	resume := h.env.Host.SuspendRefresh()
	for _, op := range p.Operations {
		r := BatchOpResult{ID: op.ID, Operation: op.Operation}
		if out, err := h.runBatchOp(ctx, op); err != nil {
			r.Error = err.Error()
			res.FailureCount++
		} else {
			r.Success = true
			r.Result = out
			res.SuccessCount++
		}
		res.Results = append(res.Results, r)
	}
	resume()

	res.Success = res.FailureCount == 0
	res.ExecutionTimeMs = elapsedMs(start)
	h.logger.Info("batch operations finished",
		"operations", len(p.Operations),
		"succeeded", res.SuccessCount,
		"failed", res.FailureCount,
	)
	return res, nil
}

func (h *handlers) runBatchOp(ctx context.Context, op BatchOp) (any, error) {
	name, ok := h.env.Registry.Resolve(op.Operation)
	if !ok || !batchable[name] {
		return nil, fmt.Errorf("unsupported batch operation %q", op.Operation)
	}
	cmd, ok := h.env.Registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unsupported batch operation %q", op.Operation)
	}
	return cmd.Invoke(ctx, op.Params)
}
