package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// AssembledMessage is a finished conversational turn. Once committed to a
// Conversation it is never mutated.
type AssembledMessage struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Sources     []Source     `json:"sources,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ChatRequest is one outgoing user turn.
type ChatRequest struct {
	AssistantName string
	Text          string
	Attachments   []Attachment
}

func (r ChatRequest) HasAttachments() bool {
	return len(r.Attachments) > 0
}

func NewUserMessage(text string, attachments []Attachment) AssembledMessage {
	var files []Attachment
	if len(attachments) > 0 {
		files = make([]Attachment, len(attachments))
		copy(files, attachments)
	}
	return AssembledMessage{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		Text:        strings.TrimSpace(text),
		Timestamp:   time.Now(),
		Attachments: files,
	}
}

func NewAssistantMessage(text string, sources []Source) AssembledMessage {
	return AssembledMessage{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Text:      text,
		Sources:   sources,
		Timestamp: time.Now(),
	}
}

func (m AssembledMessage) IsUser() bool {
	return m.Role == RoleUser
}

func (m AssembledMessage) IsAssistant() bool {
	return m.Role == RoleAssistant
}

func (m AssembledMessage) HasSources() bool {
	return len(m.Sources) > 0
}
