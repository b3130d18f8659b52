package consumption

import (
	"context"
	"fmt"

	"github.com/zenalign/tokencore/internal/domain"
)

// StubEngine is a minimal domain.AnalysisEngine: the dataset-analysis work
// itself is out of scope for this core (spec.md Non-goals), so this
// produces a deterministic placeholder result instead of performing real
// analysis, giving the HTTP layer something concrete to return.
type StubEngine struct{}

func (StubEngine) Run(_ context.Context, workItemID, userKey string) (domain.AnalysisResult, error) {
	return domain.AnalysisResult{
		WorkItemID: workItemID,
		Summary:    fmt.Sprintf("analysis queued for work item %q on behalf of %q", workItemID, userKey),
	}, nil
}

var _ domain.AnalysisEngine = StubEngine{}
