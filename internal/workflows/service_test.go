package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func TestNewService_Defaults(t *testing.T) {
	service := NewService(mocks.NewClient(t), "", " ")
	require.Equal(t, DefaultTaskQueue, service.taskQueue)
	require.Equal(t, DefaultSchedule, service.schedule)
}

func TestStartSweeper_Success(t *testing.T) {
	mockClient := mocks.NewClient(t)
	workflowRun := mocks.NewWorkflowRun(t)
	taskQueue := "groundchat-maintenance-test"

	mockClient.On(
		"ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(opts client.StartWorkflowOptions) bool {
			return opts.ID == SweepWorkflowID && opts.TaskQueue == taskQueue && opts.CronSchedule == "*/5 * * * *"
		}),
		mock.Anything,
		SweepInput{},
	).Return(workflowRun, nil)

	service := NewService(mockClient, taskQueue, "*/5 * * * *")
	require.NoError(t, service.StartSweeper(context.Background()))
}

func TestStartSweeper_Error(t *testing.T) {
	mockClient := mocks.NewClient(t)
	expectedErr := errors.New("start failed")

	mockClient.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, SweepInput{}).
		Return((*mocks.WorkflowRun)(nil), expectedErr)

	service := NewService(mockClient, "", "")
	require.ErrorIs(t, service.StartSweeper(context.Background()), expectedErr)
}

func TestStopSweeper(t *testing.T) {
	mockClient := mocks.NewClient(t)
	mockClient.On("TerminateWorkflow", mock.Anything, SweepWorkflowID, "", "sweeper stopped").Return(nil)

	service := NewService(mockClient, "", "")
	require.NoError(t, service.StopSweeper(context.Background()))
}
