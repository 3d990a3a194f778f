package chat

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Attachment is a file forwarded with a user turn. The bytes are only read
// when the request body is built.
type Attachment struct {
	Name string `json:"name" validate:"required"`
	Size int64  `json:"size" validate:"gte=0"`

	open func() (io.ReadCloser, error)
}

// NewFileAttachment references a file on disk by path.
func NewFileAttachment(path string) (Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to stat attachment: %w", err)
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("attachment %s is a directory", path)
	}

	return Attachment{
		Name: filepath.Base(path),
		Size: info.Size(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

func NewBytesAttachment(name string, data []byte) Attachment {
	return Attachment{
		Name: name,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Open returns a fresh reader over the attachment bytes.
func (a Attachment) Open() (io.ReadCloser, error) {
	if a.open == nil {
		return nil, fmt.Errorf("attachment %q has no content", a.Name)
	}
	return a.open()
}

// AttachmentLimits bounds what a single turn may carry.
type AttachmentLimits struct {
	MaxFiles    int
	MaxFileSize int64
}

func DefaultAttachmentLimits() AttachmentLimits {
	return AttachmentLimits{
		MaxFiles:    2,
		MaxFileSize: 200_000_000,
	}
}

// ValidationError is a user-facing rejection of the attachments of a turn.
type ValidationError struct {
	Title string
	Body  string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Title, e.Body)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func attachmentValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateAttachments enforces the file count and per-file size limits.
// A zero limit disables that check.
func ValidateAttachments(files []Attachment, limits AttachmentLimits) error {
	v := attachmentValidator()

	if limits.MaxFiles > 0 {
		if err := v.Var(len(files), fmt.Sprintf("lte=%d", limits.MaxFiles)); err != nil {
			return &ValidationError{
				Title: "Uploaded more than two files",
				Body:  "Upload fewer files",
				Err:   err,
			}
		}
	}

	for _, file := range files {
		if err := v.Struct(file); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				err = fmt.Errorf("attachment field %s failed %s", fieldErrs[0].Field(), fieldErrs[0].Tag())
			}
			return &ValidationError{
				Title: "Invalid attachment",
				Body:  "Every attachment needs a file name",
				Err:   err,
			}
		}
		if limits.MaxFileSize > 0 {
			if err := v.Var(file.Size, fmt.Sprintf("lte=%d", limits.MaxFileSize)); err != nil {
				return &ValidationError{
					Title: "Uploaded a file larger than 200MB.",
					Body:  "Try uploading a smaller file",
					Err:   fmt.Errorf("%s is %d bytes: %w", file.Name, file.Size, err),
				}
			}
		}
	}

	return nil
}
