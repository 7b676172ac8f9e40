package workflows

import (
	"context"
	"strings"

	"go.temporal.io/sdk/client"
)

const (
	DefaultTaskQueue = "groundchat-maintenance"
	DefaultSchedule  = "*/10 * * * *"
	SweepWorkflowID  = "groundchat:sweep"
)

type Service struct {
	client    client.Client
	taskQueue string
	schedule  string
}

func NewService(client client.Client, taskQueue string, schedule string) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	if strings.TrimSpace(schedule) == "" {
		schedule = DefaultSchedule
	}
	return &Service{client: client, taskQueue: taskQueue, schedule: schedule}
}

// StartSweeper registers the cron sweep. Starting it again while a run is
// already scheduled is not an error.
func (s *Service) StartSweeper(ctx context.Context) error {
	options := client.StartWorkflowOptions{
		ID:           SweepWorkflowID,
		TaskQueue:    s.taskQueue,
		CronSchedule: s.schedule,
	}
	_, err := s.client.ExecuteWorkflow(ctx, options, SweepWorkflow, SweepInput{})
	return err
}

func (s *Service) StopSweeper(ctx context.Context) error {
	return s.client.TerminateWorkflow(ctx, SweepWorkflowID, "", "sweeper stopped")
}
