package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Keyring-Network/groundchat/internal/llm"
	"github.com/Keyring-Network/groundchat/internal/store"
)

const (
	DefaultID  = "default"
	KeyPrefix  = "conversation:"
	DefaultTTL = 24 * time.Hour
)

// Sealer encrypts history at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type Store struct {
	kv     store.Store
	ttl    time.Duration
	sealer Sealer
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithSealer(sealer Sealer) Option {
	return func(s *Store) {
		s.sealer = sealer
	}
}

func NewStore(kv store.Store, opts ...Option) *Store {
	s := &Store{kv: kv, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the store key for a conversation; a blank id maps to the
// shared default conversation.
func Key(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		id = DefaultID
	}
	return KeyPrefix + id
}

// Load returns the stored history. A missing conversation is empty. A value
// that cannot be decoded is logged and treated as empty; only a failing
// store read is returned as an error.
func (s *Store) Load(ctx context.Context, id string) ([]llm.Message, error) {
	key := Key(id)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !ok {
		return nil, nil
	}
	history, err := s.decode(raw)
	if err != nil {
		log.Printf("conversation %s unreadable, starting fresh: %v", key, err)
		return nil, nil
	}
	return history, nil
}

// Save appends the question and answer to history and persists the result
// with a fresh expiry.
func (s *Store) Save(ctx context.Context, id string, history []llm.Message, question, answer string) error {
	next := make([]llm.Message, 0, len(history)+2)
	next = append(next, history...)
	next = append(next,
		llm.Message{Role: llm.RoleUser, Content: question},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)
	value, err := s.encode(next)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.kv.Set(ctx, Key(id), value, s.ttl); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *Store) decode(raw string) ([]llm.Message, error) {
	if s.sealer != nil {
		opened, err := s.sealer.Open(raw)
		if err != nil {
			return nil, err
		}
		raw = opened
	}
	var history []llm.Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, err
	}
	for i, msg := range history {
		if !llm.ValidRole(msg.Role) {
			return nil, fmt.Errorf("message %d has invalid role %q", i, msg.Role)
		}
	}
	return history, nil
}

func (s *Store) encode(history []llm.Message) (string, error) {
	data, err := json.Marshal(history)
	if err != nil {
		return "", err
	}
	if s.sealer == nil {
		return string(data), nil
	}
	return s.sealer.Seal(string(data))
}

// Truncate keeps the longest run of most recent messages whose combined
// content length, in characters, fits budget. Order is preserved.
func Truncate(history []llm.Message, budget int) []llm.Message {
	if budget < 0 || len(history) == 0 {
		return nil
	}
	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		size := utf8.RuneCountInString(history[i].Content)
		if used+size > budget {
			break
		}
		used += size
		start = i
	}
	if start == len(history) {
		return nil
	}
	return history[start:]
}
