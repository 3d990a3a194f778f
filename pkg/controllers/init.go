package controllers

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/composer/pkg/assistants"
	"github.com/killallgit/composer/pkg/chat"
	"github.com/killallgit/composer/pkg/classify"
	"github.com/killallgit/composer/pkg/client"
	"github.com/killallgit/composer/pkg/config"
	"github.com/killallgit/composer/pkg/logger"
	"github.com/killallgit/composer/pkg/metrics"
	"github.com/killallgit/composer/pkg/stream"
)

// InitConfig contains configuration for controller initialization
type InitConfig struct {
	Config *config.Config
	// Assistant overrides Config.Assistant.
	Assistant    string
	Metrics      *metrics.Metrics
	Handler      stream.Handler
	AuthRedirect func(status int)
}

// Session bundles the controllers of one running client.
type Session struct {
	Chat       *ChatController
	Assistants *AssistantsController
	Catalog    *assistants.Catalog
	Client     *client.Client
}

// Initialize builds the backend client, resolves the assistant and creates
// a chat controller configured from cfg.
func Initialize(ctx context.Context, cfg *InitConfig) (*Session, error) {
	log := logger.WithComponent("controller_init")

	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("configuration is required")
	}
	c := cfg.Config

	if c.Backend.URL == "" {
		return nil, errors.New("backend URL is not configured; set backend.url or COMPOSER_BACKEND_URL")
	}

	clientOpts := []client.Option{client.WithAPITimeout(c.Backend.Timeout)}
	if cfg.AuthRedirect != nil {
		clientOpts = append(clientOpts, client.WithAuthRedirect(cfg.AuthRedirect))
	}
	backend := client.NewClient(c.Backend.URL, clientOpts...)

	name := cfg.Assistant
	if name == "" {
		name = c.Assistant
	}

	catalog := assistants.NewCatalog(backend, c.Catalog.TTL, name)
	ac := NewAssistantsController(catalog)

	assistant, err := ac.Resolve(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve assistant: %w", err)
	}
	log.Info("Using assistant", "assistant", assistant.Name, "backend", backend.BaseURL())

	framing := stream.FramingAccumulate
	if c.Chat.LegacySourceFraming {
		framing = stream.FramingLegacy
	}

	limits := chat.DefaultAttachmentLimits()
	if c.Attachments.MaxFiles > 0 {
		limits.MaxFiles = c.Attachments.MaxFiles
	}
	if c.Attachments.MaxFileSize > 0 {
		limits.MaxFileSize = c.Attachments.MaxFileSize
	}

	opts := []Option{
		WithTurnTimeout(c.Chat.TurnTimeout),
		WithClassifier(classify.New(classify.WithTimeoutVisible(c.Chat.TimeoutVisible))),
		WithFramingMode(framing),
		WithReadSize(c.Chat.ReadSize),
		WithAttachmentLimits(limits),
		WithMetrics(cfg.Metrics),
	}
	if cfg.Handler != nil {
		opts = append(opts, WithHandler(cfg.Handler))
	}

	return &Session{
		Chat:       NewChatController(backend, assistant, opts...),
		Assistants: ac,
		Catalog:    catalog,
		Client:     backend,
	}, nil
}
