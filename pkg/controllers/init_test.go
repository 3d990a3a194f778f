package controllers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/killallgit/composer/pkg/config"
	"github.com/killallgit/composer/pkg/controllers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Initialize", func() {
	var (
		server *httptest.Server
		cfg    *config.Config
	)

	BeforeEach(func() {
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/admin/assistant":
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`[{"name":"docs-bot","displayName":"Docs Bot"},{"name":"hr-bot"}]`))
			case "/assistant/chat/streaming":
				w.Write([]byte("ok"))
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		}))

		cfg = &config.Config{}
		cfg.Backend.URL = server.URL
		cfg.Backend.Timeout = 5 * time.Second
		cfg.Catalog.TTL = time.Minute
		cfg.Chat.TimeoutVisible = true
	})

	AfterEach(func() {
		server.Close()
	})

	It("should require a configuration", func() {
		_, err := controllers.Initialize(context.Background(), nil)
		Expect(err).To(HaveOccurred())
	})

	It("should require a backend URL", func() {
		cfg.Backend.URL = ""
		_, err := controllers.Initialize(context.Background(), &controllers.InitConfig{Config: cfg})
		Expect(err).To(MatchError(ContainSubstring("backend URL")))
	})

	It("should resolve the default assistant", func() {
		session, err := controllers.Initialize(context.Background(), &controllers.InitConfig{Config: cfg})
		Expect(err).ToNot(HaveOccurred())
		Expect(session.Chat.Assistant().Name).To(Equal("docs-bot"))
		Expect(session.Client.BaseURL()).To(Equal(server.URL))
	})

	It("should prefer the assistant override", func() {
		cfg.Assistant = "docs-bot"
		session, err := controllers.Initialize(context.Background(), &controllers.InitConfig{
			Config:    cfg,
			Assistant: "hr-bot",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(session.Chat.Assistant().Name).To(Equal("hr-bot"))
	})

	It("should fail for an unknown assistant", func() {
		cfg.Assistant = "nope"
		_, err := controllers.Initialize(context.Background(), &controllers.InitConfig{Config: cfg})
		Expect(err).To(MatchError(ContainSubstring("failed to resolve assistant")))
	})

	It("should produce a working chat controller", func() {
		session, err := controllers.Initialize(context.Background(), &controllers.InitConfig{Config: cfg})
		Expect(err).ToNot(HaveOccurred())

		turn, err := session.Chat.SendMessage(context.Background(), "hi", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(turn.Message.Text).To(Equal("ok"))
	})
})
