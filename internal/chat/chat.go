package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/Keyring-Network/groundchat/internal/conversation"
	"github.com/Keyring-Network/groundchat/internal/grounding"
	"github.com/Keyring-Network/groundchat/internal/llm"
	"github.com/Keyring-Network/groundchat/internal/prompt"
)

const DefaultTokenLimit = 8000

var ErrEmptyMessage = errors.New("message is required")

type Grounder interface {
	Ground(ctx context.Context, res grounding.Resolution) grounding.Grounding
}

type Conversations interface {
	Load(ctx context.Context, id string) ([]llm.Message, error)
	Save(ctx context.Context, id string, history []llm.Message, question, answer string) error
}

type Request struct {
	Message        string
	ConversationID string
	TraceID        string
}

type Response struct {
	Output  string
	Sources []string
}

// Service runs one question through grounding, history and the model.
type Service struct {
	grounder      Grounder
	conversations Conversations
	provider      llm.Provider
	tokenLimit    int
}

func NewService(grounder Grounder, conversations Conversations, provider llm.Provider, tokenLimit int) *Service {
	if tokenLimit <= 0 {
		tokenLimit = DefaultTokenLimit
	}
	return &Service{
		grounder:      grounder,
		conversations: conversations,
		provider:      provider,
		tokenLimit:    tokenLimit,
	}
}

// Answer resolves the message, grounds it, and asks the model with as much
// recent history as the character budget allows. The exchange is persisted
// only after the model answered; a failed save is logged and the answer is
// still returned.
func (s *Service) Answer(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Response{}, ErrEmptyMessage
	}
	resolution := grounding.Resolve(req.Message)
	material := s.grounder.Ground(ctx, resolution)
	texts := material.Texts()

	history, err := s.conversations.Load(ctx, req.ConversationID)
	if err != nil {
		return Response{}, err
	}
	history = conversation.Truncate(history, s.historyBudget(resolution.Question, texts))

	p := prompt.Assemble(texts, material.URLs, resolution.Question)
	output, err := s.provider.Generate(ctx, p.Messages(history))
	if err != nil {
		return Response{}, fmt.Errorf("generate answer: %w", err)
	}

	if err := s.conversations.Save(ctx, req.ConversationID, history, resolution.Question, output); err != nil {
		log.Printf("trace %s: conversation not saved: %v", req.TraceID, err)
	}
	return Response{Output: output, Sources: material.URLs}, nil
}

func (s *Service) historyBudget(question string, sources []string) int {
	budget := s.tokenLimit - utf8.RuneCountInString(question)
	for _, text := range sources {
		budget -= utf8.RuneCountInString(text)
	}
	return budget
}
