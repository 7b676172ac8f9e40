package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type SweepInput struct{}

type SweepResult struct {
	Removed int64
}

// SweepWorkflow runs one purge of expired cache entries and stale
// rate-limit hits. The cron schedule on the workflow repeats it.
func SweepWorkflow(ctx workflow.Context, input SweepInput) (SweepResult, error) {
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 5 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)
	logger := workflow.GetLogger(ctx)

	var output PurgeOutput
	if err := workflow.ExecuteActivity(ctx, "PurgeExpired", PurgeInput{Now: workflow.Now(ctx)}).Get(ctx, &output); err != nil {
		logger.Error("sweep failed", "error", err)
		return SweepResult{}, err
	}
	logger.Info("sweep complete", "removed", output.Removed)
	return SweepResult{Removed: output.Removed}, nil
}
