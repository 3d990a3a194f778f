package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedSourceBlock is returned when an accumulated source block is
// not valid JSON of the expected shape.
var ErrMalformedSourceBlock = errors.New("malformed source block")

// Source is one citation attached to an assistant answer.
type Source struct {
	Link string `json:"link"`
	Body string `json:"body"`
}

type sourceResponse struct {
	Content *[]sourceItem `json:"content"`
}

type sourceItem struct {
	Metadata struct {
		Source string `json:"source"`
	} `json:"metadata"`
	Text string `json:"text"`
}

// ParseSources decodes a source block of the form
// {"content":[{"metadata":{"source":...},"text":...}]}.
func ParseSources(raw string) ([]Source, error) {
	var resp sourceResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSourceBlock, err)
	}
	if resp.Content == nil {
		return nil, fmt.Errorf("%w: missing content field", ErrMalformedSourceBlock)
	}

	sources := make([]Source, 0, len(*resp.Content))
	for _, item := range *resp.Content {
		sources = append(sources, Source{
			Link: item.Metadata.Source,
			Body: item.Text,
		})
	}
	return sources, nil
}
