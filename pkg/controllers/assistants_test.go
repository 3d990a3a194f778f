package controllers_test

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/killallgit/composer/pkg/assistants"
	"github.com/killallgit/composer/pkg/controllers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type staticLister struct {
	list []assistants.Assistant
	err  error
}

func (l staticLister) ListAssistants(context.Context) ([]assistants.Assistant, error) {
	return l.list, l.err
}

var _ = Describe("AssistantsController", func() {
	var (
		lister     staticLister
		controller *controllers.AssistantsController
		buffer     *bytes.Buffer
	)

	BeforeEach(func() {
		lister = staticLister{list: []assistants.Assistant{
			{Name: "docs-bot", DisplayName: "Docs Bot", Description: "Answers questions\nabout the docs"},
			{Name: "hr-bot"},
		}}
		buffer = &bytes.Buffer{}
	})

	JustBeforeEach(func() {
		controller = controllers.NewAssistantsController(assistants.NewCatalog(lister, time.Minute, ""))
	})

	Describe("ListAssistants", func() {
		It("should print a table of assistants", func() {
			Expect(controller.ListAssistants(context.Background(), buffer)).To(Succeed())

			output := buffer.String()
			Expect(output).To(ContainSubstring("NAME"))
			Expect(output).To(ContainSubstring("DISPLAY NAME"))
			Expect(output).To(ContainSubstring("docs-bot"))
			Expect(output).To(ContainSubstring("Answers questions about the docs"))
			Expect(output).To(ContainSubstring("hr-bot"))
		})

		Context("when there are no assistants", func() {
			BeforeEach(func() {
				lister.list = nil
			})

			It("should say so", func() {
				Expect(controller.ListAssistants(context.Background(), buffer)).To(Succeed())
				Expect(buffer.String()).To(Equal("No assistants found\n"))
			})
		})

		Context("when the backend fails", func() {
			BeforeEach(func() {
				lister.err = assistants.ErrForbidden
			})

			It("should wrap the error", func() {
				err := controller.ListAssistants(context.Background(), buffer)
				Expect(errors.Is(err, assistants.ErrForbidden)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("failed to list assistants"))
			})
		})
	})

	Describe("Resolve", func() {
		It("should fall back to the default assistant", func() {
			a, err := controller.Resolve(context.Background(), "")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Name).To(Equal("docs-bot"))
		})

		It("should look up a named assistant", func() {
			a, err := controller.Resolve(context.Background(), "hr-bot")
			Expect(err).ToNot(HaveOccurred())
			Expect(a.Name).To(Equal("hr-bot"))
		})

		It("should fail for unknown assistants", func() {
			_, err := controller.Resolve(context.Background(), "nope")
			Expect(errors.Is(err, assistants.ErrNotFound)).To(BeTrue())
		})
	})
})
