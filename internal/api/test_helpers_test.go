package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/Keyring-Network/groundchat/internal/chat"
	"github.com/Keyring-Network/groundchat/internal/ratelimit"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Answer(ctx context.Context, req chat.Request) (chat.Response, error) {
	args := m.Called(ctx, req)
	var resp chat.Response
	if value := args.Get(0); value != nil {
		resp = value.(chat.Response)
	}
	return resp, args.Error(1)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Limit(ctx context.Context, identity string) (ratelimit.Result, error) {
	args := m.Called(ctx, identity)
	var result ratelimit.Result
	if value := args.Get(0); value != nil {
		result = value.(ratelimit.Result)
	}
	return result, args.Error(1)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func newTestServer(t *testing.T, chat ChatService, limiter RateLimiter, store Pinger) *httptest.Server {
	t.Helper()
	server := NewServer(chat, limiter, store)
	return httptest.NewServer(server.Router())
}
