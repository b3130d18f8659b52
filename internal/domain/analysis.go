package domain

import "context"

// AnalysisResult is the opaque outcome of one AnalysisEngine invocation.
// Its shape is intentionally thin: the analysis pipeline's detailed
// behavior (profiling, PII scanning, LLM calls, resource search) is an
// external collaborator and out of this core's scope (spec.md §1).
type AnalysisResult struct {
	WorkItemID string `json:"work_item_id"`
	Summary    string `json:"summary"`
}

// AnalysisEngine is the do_work callback ConsumptionGuard invokes after a
// successful debit. Implementations may perform arbitrary external work;
// ConsumptionGuard does not reverse the debit if Run fails (spec.md §4.6).
type AnalysisEngine interface {
	Run(ctx context.Context, workItemID, userKey string) (AnalysisResult, error)
}
