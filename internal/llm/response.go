package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/service"
)

// ErrUnparseableResponse is returned when the model reply has none of the
// expected category lines.
var ErrUnparseableResponse = errors.New("unparseable category response")

// statusError classifies a non-200 reply. Rate limits back off, other client
// errors are permanent, server errors are retried.
func statusError(provider string, status int, body []byte) error {
	err := fmt.Errorf("%s API error (status %d): %s", provider, status, strings.TrimSpace(string(body)))
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	case status >= 400 && status < 500:
		return common.Permanent(err)
	default:
		return err
	}
}

// cleanMarkdownWrapper strips a surrounding ``` fence from a reply.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

var suggestionLabels = []string{
	"1. Primary Category:",
	"2. Alternative Category:",
	"3. Suggested New Category:",
}

// parseSuggestion reads the three labelled lines of a reply. Labels are
// matched case-insensitively and may appear in any order. A reply without any
// labels is read positionally.
func parseSuggestion(content string) (*service.Suggestion, error) {
	var values [3]string
	var loose []string
	labelled := false

	for _, line := range strings.Split(cleanMarkdownWrapper(content), "\n") {
		line = strings.TrimSpace(strings.Trim(line, "*"))
		if line == "" {
			continue
		}
		matched := false
		for i, label := range suggestionLabels {
			if len(line) >= len(label) && strings.EqualFold(line[:len(label)], label) {
				values[i] = cleanValue(line[len(label):])
				matched = true
				labelled = true
				break
			}
		}
		if !matched {
			loose = append(loose, cleanValue(line))
		}
	}

	if !labelled {
		for i := 0; i < len(values) && i < len(loose); i++ {
			values[i] = loose[i]
		}
	}

	if values[0] == "" && values[1] == "" && values[2] == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnparseableResponse, content)
	}

	return &service.Suggestion{
		Primary:     values[0],
		Alternative: values[1],
		Suggested:   values[2],
	}, nil
}

func cleanValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*`\""))
}
