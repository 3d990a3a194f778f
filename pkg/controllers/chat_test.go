package controllers_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/killallgit/composer/pkg/assistants"
	"github.com/killallgit/composer/pkg/chat"
	"github.com/killallgit/composer/pkg/classify"
	"github.com/killallgit/composer/pkg/client"
	"github.com/killallgit/composer/pkg/controllers"
	"github.com/killallgit/composer/pkg/metrics"
	"github.com/killallgit/composer/pkg/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const sourceBlock = `{"content":[{"metadata":{"source":"https://docs.example.com/rag"},"text":"RAG combines retrieval and generation."}]}`

var _ = Describe("ChatController", func() {
	var (
		docsBot    assistants.Assistant
		streamer   *fakeStreamer
		controller *controllers.ChatController
	)

	BeforeEach(func() {
		docsBot = assistants.Assistant{Name: "docs-bot", DisplayName: "Docs Bot"}
		streamer = &fakeStreamer{respond: replying("Hello")}
		controller = controllers.NewChatController(streamer, docsBot)
	})

	Describe("NewChatController", func() {
		It("should start with an empty conversation", func() {
			Expect(controller.GetMessageCount()).To(Equal(0))
			Expect(controller.Assistant()).To(Equal(docsBot))
			Expect(controller.Busy()).To(BeFalse())
			Expect(controller.LastError()).To(BeNil())
		})
	})

	Describe("SendMessage", func() {
		It("should commit the user message and the streamed answer", func() {
			streamer.respond = replying("Retrieval ", "augmented ", "generation")

			turn, err := controller.SendMessage(context.Background(), "What is RAG?", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(turn.Cancelled).To(BeFalse())
			Expect(turn.Message.Text).To(Equal("Retrieval augmented generation"))
			Expect(turn.Message.Role).To(Equal(chat.RoleAssistant))

			history := controller.GetHistory()
			Expect(history).To(HaveLen(2))
			Expect(history[0].Role).To(Equal(chat.RoleUser))
			Expect(history[0].Text).To(Equal("What is RAG?"))
			Expect(history[1].Text).To(Equal("Retrieval augmented generation"))
			Expect(controller.PartialText()).To(BeEmpty())
			Expect(controller.Busy()).To(BeFalse())
		})

		It("should send the assistant name with the request", func() {
			_, err := controller.SendMessage(context.Background(), "hi", nil)
			Expect(err).ToNot(HaveOccurred())

			requests := streamer.Requests()
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].AssistantName).To(Equal("docs-bot"))
			Expect(requests[0].Text).To(Equal("hi"))
		})

		It("should split the answer from its sources", func() {
			streamer.respond = replying("RAG is ", "retrieval", stream.StartSourcesMarker, sourceBlock, stream.EndSourcesMarker)

			turn, err := controller.SendMessage(context.Background(), "What is RAG?", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(turn.Message.Text).To(Equal("RAG is retrieval"))
			Expect(turn.Sources).To(Equal([]chat.Source{{
				Link: "https://docs.example.com/rag",
				Body: "RAG combines retrieval and generation.",
			}}))

			last, ok := controller.GetLastAssistantMessage()
			Expect(ok).To(BeTrue())
			Expect(last.HasSources()).To(BeTrue())
		})

		It("should keep answer text on both sides of an empty source block", func() {
			streamer.respond = replying("A", stream.StartSourcesMarker+`{"content":[]}`+stream.EndSourcesMarker+"B")

			turn, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(turn.Message.Text).To(Equal("AB"))
			Expect(turn.Sources).To(BeEmpty())
		})

		It("should drop answer text that shares a chunk with the start marker", func() {
			streamer.respond = replying("A" + stream.StartSourcesMarker + `{"content":[]}` + stream.EndSourcesMarker + "B")

			turn, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(turn.Message.Text).To(Equal("B"))
			Expect(turn.Sources).To(BeEmpty())
		})

		It("should keep sources that span several chunks", func() {
			half := len(sourceBlock) / 2
			streamer.respond = replying("Answer", stream.StartSourcesMarker+sourceBlock[:half], sourceBlock[half:], stream.EndSourcesMarker)

			turn, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(turn.Message.Text).To(Equal("Answer"))
			Expect(turn.Sources).To(HaveLen(1))
		})

		It("should lose middle source chunks with legacy framing", func() {
			controller = controllers.NewChatController(streamer, docsBot, controllers.WithFramingMode(stream.FramingLegacy))
			half := len(sourceBlock) / 2
			streamer.respond = replying("Answer", stream.StartSourcesMarker+sourceBlock[:half], sourceBlock[half:], stream.EndSourcesMarker)

			turn, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(turn.Message.Text).To(Equal("Answer"))

			var classified *classify.Error
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Kind).To(Equal(classify.KindMalformedSourceBlock))
		})

		It("should reject an empty message without contacting the backend", func() {
			_, err := controller.SendMessage(context.Background(), "   ", nil)
			Expect(err).To(MatchError(controllers.ErrEmptyMessage))
			Expect(streamer.Requests()).To(BeEmpty())
			Expect(controller.GetMessageCount()).To(Equal(0))
		})

		It("should stream answer segments to the handler", func() {
			var out, errOut bytes.Buffer
			handler := stream.NewConsoleHandler(&out, &errOut)
			controller.SetHandler(handler)
			streamer.respond = replying("Hello ", "world", stream.StartSourcesMarker, sourceBlock, stream.EndSourcesMarker)

			_, err := controller.SendMessage(context.Background(), "hi", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(handler.Content()).To(Equal("Hello world"))
			Expect(out.String()).To(HavePrefix("Hello world"))
			Expect(errOut.String()).To(BeEmpty())
		})

		It("should report partial answers to the observer", func() {
			var partials []string
			controller.OnPartial(func(partial string) {
				partials = append(partials, partial)
			})
			streamer.respond = func(context.Context, chat.ChatRequest) (io.ReadCloser, error) {
				pr, pw := io.Pipe()
				go func() {
					pw.Write([]byte("Hel"))
					pw.Write([]byte("lo"))
					pw.Close()
				}()
				return pr, nil
			}

			_, err := controller.SendMessage(context.Background(), "hi", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(partials).To(Equal([]string{"Hel", "Hello"}))
		})
	})

	Describe("failures", func() {
		It("should commit the answer when the source block is malformed", func() {
			streamer.respond = replying("The answer", stream.StartSourcesMarker, "{not json", stream.EndSourcesMarker)

			turn, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(turn).ToNot(BeNil())
			Expect(turn.Message.Text).To(Equal("The answer"))
			Expect(turn.Sources).To(BeEmpty())

			var classified *classify.Error
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Kind).To(Equal(classify.KindMalformedSourceBlock))
			Expect(classified.Body).To(ContainSubstring("Docs Bot"))

			Expect(controller.GetMessageCount()).To(Equal(2))
			Expect(controller.LastError()).To(Equal(classified))
		})

		It("should surface generic transport errors with their message", func() {
			streamer.respond = func(context.Context, chat.ChatRequest) (io.ReadCloser, error) {
				return nil, errors.New("connection refused")
			}

			turn, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(turn).To(BeNil())

			var classified *classify.Error
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Kind).To(Equal(classify.KindGenericError))
			Expect(classified.Body).To(Equal("connection refused"))

			history := controller.GetHistory()
			Expect(history).To(HaveLen(1))
			Expect(history[0].Role).To(Equal(chat.RoleUser))
		})

		It("should clear the previous error when a new turn starts", func() {
			streamer.respond = func(context.Context, chat.ChatRequest) (io.ReadCloser, error) {
				return nil, errors.New("boom")
			}
			_, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(err).To(HaveOccurred())
			Expect(controller.LastError()).ToNot(BeNil())

			streamer.respond = replying("fine")
			_, err = controller.SendMessage(context.Background(), "again", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(controller.LastError()).To(BeNil())
		})

		It("should dismiss the current error", func() {
			streamer.respond = func(context.Context, chat.ChatRequest) (io.ReadCloser, error) {
				return nil, errors.New("boom")
			}
			controller.SendMessage(context.Background(), "q", nil)
			Expect(controller.LastError()).ToNot(BeNil())

			controller.DismissError()
			Expect(controller.LastError()).To(BeNil())
		})

		It("should reject too many attachments before streaming", func() {
			files := []chat.Attachment{
				chat.NewBytesAttachment("a.txt", []byte("a")),
				chat.NewBytesAttachment("b.txt", []byte("b")),
				chat.NewBytesAttachment("c.txt", []byte("c")),
			}

			turn, err := controller.SendMessage(context.Background(), "q", files)
			Expect(turn).To(BeNil())

			var classified *classify.Error
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Kind).To(Equal(classify.KindInvalidAttachment))
			Expect(classified.Title).To(Equal("Uploaded more than two files"))
			Expect(streamer.Requests()).To(BeEmpty())
			Expect(controller.GetMessageCount()).To(Equal(0))
		})

		It("should forward valid attachments", func() {
			files := []chat.Attachment{chat.NewBytesAttachment("notes.txt", []byte("notes"))}

			_, err := controller.SendMessage(context.Background(), "summarize", files)
			Expect(err).ToNot(HaveOccurred())
			Expect(streamer.Requests()[0].Attachments).To(HaveLen(1))
			Expect(controller.GetHistory()[0].Attachments).To(HaveLen(1))
		})
	})

	Describe("Stop", func() {
		It("should report false when nothing is running", func() {
			Expect(controller.Stop()).To(BeFalse())
		})

		It("should discard the turn silently", func() {
			streamer.respond = func(ctx context.Context, _ chat.ChatRequest) (io.ReadCloser, error) {
				return hanging(ctx, "partial answer"), nil
			}

			type result struct {
				turn *controllers.Turn
				err  error
			}
			done := make(chan result, 1)
			go func() {
				turn, err := controller.SendMessage(context.Background(), "q", nil)
				done <- result{turn, err}
			}()

			Eventually(controller.PartialText).Should(Equal("partial answer"))
			Expect(controller.Busy()).To(BeTrue())
			Expect(controller.Stop()).To(BeTrue())

			var r result
			Eventually(done).Should(Receive(&r))
			Expect(r.err).ToNot(HaveOccurred())
			Expect(r.turn.Cancelled).To(BeTrue())
			Expect(r.turn.Message).To(BeNil())

			history := controller.GetHistory()
			Expect(history).To(HaveLen(1))
			Expect(history[0].Role).To(Equal(chat.RoleUser))
			Expect(controller.PartialText()).To(BeEmpty())
			Expect(controller.LastError()).To(BeNil())
			Expect(controller.Busy()).To(BeFalse())
		})
	})

	Describe("superseding turns", func() {
		It("should keep the old turn out of the new turn's answer", func() {
			streamer.respond = func(ctx context.Context, req chat.ChatRequest) (io.ReadCloser, error) {
				if req.Text == "first" {
					return hanging(ctx, "stale text"), nil
				}
				return replying("fresh answer")(ctx, req)
			}

			done := make(chan *controllers.Turn, 1)
			errs := make(chan error, 1)
			go func() {
				turn, err := controller.SendMessage(context.Background(), "first", nil)
				done <- turn
				errs <- err
			}()
			Eventually(controller.PartialText).Should(Equal("stale text"))

			turn, err := controller.SendMessage(context.Background(), "second", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(turn.Message.Text).To(Equal("fresh answer"))

			var first *controllers.Turn
			Eventually(done).Should(Receive(&first))
			Expect(first.Cancelled).To(BeTrue())
			Expect(<-errs).ToNot(HaveOccurred())

			texts := []string{}
			for _, m := range controller.GetHistory() {
				texts = append(texts, m.Text)
			}
			Expect(texts).To(Equal([]string{"first", "second", "fresh answer"}))
			Expect(controller.LastError()).To(BeNil())
		})
	})

	Describe("turn timeout", func() {
		BeforeEach(func() {
			streamer.respond = func(ctx context.Context, _ chat.ChatRequest) (io.ReadCloser, error) {
				return hanging(ctx, "slow"), nil
			}
		})

		It("should report a timed out turn as an assistant error", func() {
			controller = controllers.NewChatController(streamer, docsBot,
				controllers.WithTurnTimeout(50*time.Millisecond))

			turn, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(turn).To(BeNil())

			var classified *classify.Error
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Kind).To(Equal(classify.KindAssistantError))
			Expect(classified.Body).To(ContainSubstring("Docs Bot"))
			Expect(controller.GetMessageCount()).To(Equal(1))
		})

		It("should stay silent when timeouts are hidden", func() {
			controller = controllers.NewChatController(streamer, docsBot,
				controllers.WithTurnTimeout(50*time.Millisecond),
				controllers.WithClassifier(classify.New(classify.WithTimeoutVisible(false))))

			turn, err := controller.SendMessage(context.Background(), "q", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(turn.Cancelled).To(BeTrue())
			Expect(controller.LastError()).To(BeNil())
		})
	})

	Describe("SwitchAssistant", func() {
		It("should start a fresh conversation", func() {
			_, err := controller.SendMessage(context.Background(), "hi", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(controller.GetMessageCount()).To(Equal(2))

			hrBot := assistants.Assistant{Name: "hr-bot"}
			controller.SwitchAssistant(hrBot)

			Expect(controller.Assistant()).To(Equal(hrBot))
			Expect(controller.GetMessageCount()).To(Equal(0))
			Expect(controller.GetConversation().Assistant).To(Equal("hr-bot"))

			_, err = controller.SendMessage(context.Background(), "hi", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(streamer.Requests()[1].AssistantName).To(Equal("hr-bot"))
		})

		It("should drop a turn that was still streaming", func() {
			streamer.respond = func(ctx context.Context, _ chat.ChatRequest) (io.ReadCloser, error) {
				return hanging(ctx, "old"), nil
			}
			done := make(chan *controllers.Turn, 1)
			go func() {
				turn, _ := controller.SendMessage(context.Background(), "q", nil)
				done <- turn
			}()
			Eventually(controller.PartialText).Should(Equal("old"))

			controller.SwitchAssistant(assistants.Assistant{Name: "hr-bot"})

			var turn *controllers.Turn
			Eventually(done).Should(Receive(&turn))
			Expect(turn.Cancelled).To(BeTrue())
			Expect(controller.GetMessageCount()).To(Equal(0))
			Expect(controller.LastError()).To(BeNil())
		})
	})

	Describe("metrics", func() {
		It("should count completed turns and errors", func() {
			reg := prometheus.NewRegistry()
			controller = controllers.NewChatController(streamer, docsBot,
				controllers.WithMetrics(metrics.New(reg)))

			_, err := controller.SendMessage(context.Background(), "hi", nil)
			Expect(err).ToNot(HaveOccurred())

			streamer.respond = func(context.Context, chat.ChatRequest) (io.ReadCloser, error) {
				return nil, errors.New("boom")
			}
			_, err = controller.SendMessage(context.Background(), "hi", nil)
			Expect(err).To(HaveOccurred())

			Expect(testutil.GatherAndCount(reg, "composer_chat_turns_total")).To(Equal(2))
			Expect(testutil.GatherAndCount(reg, "composer_chat_errors_total")).To(Equal(1))
		})
	})

	Describe("against the HTTP backend", func() {
		var server *httptest.Server

		BeforeEach(func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/assistant/chat/streaming" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				var payload struct {
					AssistantName string `json:"assistantName"`
				}
				if err := jsonDecode(r.Body, &payload); err != nil || payload.AssistantName != "docs-bot" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.Write([]byte(stream.StartSourcesMarker + sourceBlock + stream.EndSourcesMarker))
				w.(http.Flusher).Flush()
				w.Write([]byte("Streamed over HTTP"))
			}))
		})

		AfterEach(func() {
			server.Close()
		})

		It("should assemble a streamed answer", func() {
			controller = controllers.NewChatController(client.NewClient(server.URL), docsBot)

			turn, err := controller.SendMessage(context.Background(), "hi", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(turn.Message.Text).To(Equal("Streamed over HTTP"))
			Expect(turn.Sources).To(HaveLen(1))
		})

		It("should name the assistant when it is unavailable", func() {
			missing := assistants.Assistant{Name: "gone-bot", DisplayName: "Gone Bot"}
			controller = controllers.NewChatController(client.NewClient(server.URL), missing)

			_, err := controller.SendMessage(context.Background(), "hi", nil)

			var classified *classify.Error
			Expect(errors.As(err, &classified)).To(BeTrue())
			Expect(classified.Kind).To(Equal(classify.KindAssistantUnavailable))
			Expect(classified.Title).To(Equal("404: Network error"))
			Expect(classified.Body).To(Equal("Gone Bot is currently unavailable. Use a different assistant or try again later."))
		})
	})
})
