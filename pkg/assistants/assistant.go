package assistants

import (
	"errors"
)

var (
	ErrNotFound     = errors.New("assistant not found")
	ErrNoAssistants = errors.New("no assistants configured")
	ErrUnauthorized = errors.New("not authorized to list assistants")
	ErrForbidden    = errors.New("forbidden to list assistants")
	ErrUnavailable  = errors.New("assistant service unavailable")
	ErrServer       = errors.New("assistant service error")
)

// Assistant is a chat persona served by the backend.
type Assistant struct {
	ID               string   `json:"id,omitempty"`
	Name             string   `json:"name"`
	DisplayName      string   `json:"displayName,omitempty"`
	Description      string   `json:"description,omitempty"`
	ExampleQuestions []string `json:"exampleQuestions,omitempty"`
}

// Label is the name shown to users.
func (a Assistant) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}
