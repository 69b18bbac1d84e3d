package automation

import (
	"context"
	"fmt"

	"qaworkbench/internal/algorithms"
	"qaworkbench/internal/domain"
	"qaworkbench/internal/report"
)

// HandleReport runs a report handler algorithm with rep as its report
// parameter and waits for the run to finish. Completions of other requests
// read from runner meanwhile are discarded, so the runner must not be shared
// with a pumping Dispatcher.
func HandleReport(ctx context.Context, runner Runner, algorithmID string, params map[string]any, rep domain.ValidationReport) (Completion, error) {
	raw, err := report.JSON(rep)
	if err != nil {
		return Completion{}, err
	}
	merged := make(map[string]any, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged[algorithms.ReportParameter] = string(raw)

	h, err := runner.Submit(ctx, Request{Check: -1, AlgorithmID: algorithmID, Parameters: merged})
	if err != nil {
		return Completion{}, fmt.Errorf("submit %s: %w", algorithmID, err)
	}
	for {
		select {
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		case c, ok := <-runner.Completions():
			if !ok {
				return Completion{}, ErrRunnerClosed
			}
			if c.Handle.ID == h.ID {
				return c, nil
			}
		}
	}
}
