// Package request encodes a chat turn into an HTTP request body.
package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/killallgit/composer/pkg/chat"
)

const (
	// StreamingPath accepts a JSON chat request.
	StreamingPath = "/assistant/chat/streaming"
	// StreamingUploadPath accepts a multipart chat request with documents.
	StreamingUploadPath = "/assistant/chat/streamingWithFileUpload"

	JSONPartName     = "jsonRequest"
	DocumentPartName = "document"

	contentTypeJSON = "application/json"
)

// Payload is the JSON body shared by both encodings.
type Payload struct {
	Message       string `json:"message"`
	AssistantName string `json:"assistantName"`
}

// Body is a wire-ready request body.
type Body struct {
	Reader io.Reader
	// ContentType is application/json, or multipart/form-data with the
	// boundary the body was written with.
	ContentType string
	Path        string
	Multipart   bool
	Size        int64
}

// Build encodes req. Without attachments the body is the JSON payload;
// otherwise it is multipart with one jsonRequest part followed by one
// document part per attachment, in order.
func Build(req chat.ChatRequest) (*Body, error) {
	payload, err := json.Marshal(Payload{
		Message:       req.Text,
		AssistantName: req.AssistantName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	if !req.HasAttachments() {
		return &Body{
			Reader:      bytes.NewReader(payload),
			ContentType: contentTypeJSON,
			Path:        StreamingPath,
			Size:        int64(len(payload)),
		}, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreatePart(partHeader(JSONPartName, "blob", contentTypeJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s part: %w", JSONPartName, err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to write %s part: %w", JSONPartName, err)
	}

	for _, att := range req.Attachments {
		if err := writeDocument(w, att); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	return &Body{
		Reader:      &buf,
		ContentType: w.FormDataContentType(),
		Path:        StreamingUploadPath,
		Multipart:   true,
		Size:        int64(buf.Len()),
	}, nil
}

func writeDocument(w *multipart.Writer, att chat.Attachment) error {
	rc, err := att.Open()
	if err != nil {
		return fmt.Errorf("failed to open attachment %s: %w", att.Name, err)
	}
	defer rc.Close()

	part, err := w.CreatePart(partHeader(DocumentPartName, att.Name, contentTypeFor(att.Name)))
	if err != nil {
		return fmt.Errorf("failed to create document part for %s: %w", att.Name, err)
	}
	if _, err := io.Copy(part, rc); err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", att.Name, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func partHeader(name, filename, contentType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(name), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	return h
}

func contentTypeFor(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
