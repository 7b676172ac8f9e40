package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Keyring-Network/groundchat/internal/api"
	"github.com/Keyring-Network/groundchat/internal/chat"
	"github.com/Keyring-Network/groundchat/internal/config"
	"github.com/Keyring-Network/groundchat/internal/conversation"
	"github.com/Keyring-Network/groundchat/internal/grounding"
	"github.com/Keyring-Network/groundchat/internal/llm"
	"github.com/Keyring-Network/groundchat/internal/ratelimit"
	"github.com/Keyring-Network/groundchat/internal/scrape"
	"github.com/Keyring-Network/groundchat/internal/search"
	"github.com/Keyring-Network/groundchat/internal/secrets"
	"github.com/Keyring-Network/groundchat/internal/store"
	"github.com/Keyring-Network/groundchat/internal/store/backend"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

const memorySweepInterval = time.Minute

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	openBackend = func(cfg config.Config) (store.Backend, error) {
		return backend.Open(backend.Options{
			Kind:        cfg.StoreBackend,
			PostgresURL: cfg.PostgresURL,
			SQLitePath:  cfg.SQLitePath,
			BoltPath:    cfg.BoltPath,
		})
	}
	newProvider = llm.NewProvider
	newSealer   = func(raw string) (conversation.Sealer, error) {
		return secrets.NewBox(raw)
	}
	newServer = func(chat api.ChatService, limiter api.RateLimiter, store api.Pinger) server {
		return api.NewServer(chat, limiter, store)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	kv, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	provider, err := newProvider(llm.Config{
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		GroqAPIKey:       cfg.GroqAPIKey,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
		MaxRetries:       uint64(max(cfg.LLMMaxRetries, 0)),
	})
	if err != nil {
		return err
	}

	conversationOpts := []conversation.Option{conversation.WithTTL(cfg.ConversationTTL)}
	if cfg.ConversationSecretsKey != "" {
		sealer, err := newSealer(cfg.ConversationSecretsKey)
		if err != nil {
			return err
		}
		conversationOpts = append(conversationOpts, conversation.WithSealer(sealer))
	}
	conversations := conversation.NewStore(kv, conversationOpts...)

	searcher := search.NewDuckDuckGo(search.Config{
		BaseURL:           cfg.SearchBaseURL,
		MaxResults:        cfg.SearchMaxResults,
		RequestsPerSecond: cfg.SearchRequestsPerSec,
	})
	scraper := scrape.NewCache(kv, scrape.NewHTTPFetcher(nil), cfg.ScrapeTTL)
	grounder := grounding.NewGrounder(scraper, searcher, cfg.SourceMaxChars)
	service := chat.NewService(grounder, conversations, provider, cfg.TokenLimit)
	limiter := ratelimit.New(kv, cfg.RateLimitRequests, cfg.RateLimitWindow)

	if !backend.Shared(cfg.StoreBackend) {
		go sweepPeriodically(ctx, kv, memorySweepInterval)
	}

	srv := newServer(service, limiter, kv)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("groundchat listening on %s (store=%s, llm=%s)", addr, cfg.StoreBackend, cfg.LLMProvider)
	if err := srv.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// sweepPeriodically purges expired entries from a process-local store until
// ctx is done. Shared backends are swept by the worker instead.
func sweepPeriodically(ctx context.Context, sweeper store.Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := sweeper.PurgeExpired(ctx, now)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("swept %d expired entries", removed)
			}
		}
	}
}
