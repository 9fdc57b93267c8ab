// Package validator checks ingestion requests and reports per-field
// failures.
package validator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/ingestion"
)

const (
	maxURLLength     = 2048
	maxContentLength = 1048576
	maxLanguageCode  = 16
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks the URL, content and language of req.
// supported reports whether a content type has a reader.
func ValidateIngestRequest(req *ingestion.IngestRequest, supported func(contentType string) bool) error {
	errs := make(map[string]string)

	switch u := strings.TrimSpace(req.URL); {
	case u == "":
		errs["url"] = "url is required"
	case len(u) > maxURLLength:
		errs["url"] = fmt.Sprintf("url must be at most %d characters", maxURLLength)
	default:
		if parsed, err := url.Parse(u); err != nil || parsed.Scheme == "" {
			errs["url"] = "url must be absolute"
		}
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		errs["content"] = "content is required and must not be empty"
	} else if len(req.Content) > maxContentLength {
		errs["content"] = fmt.Sprintf("content must be at most %d bytes", maxContentLength)
	}
	if supported != nil && !supported(req.ContentType) {
		errs["content_type"] = fmt.Sprintf("unsupported content type %q", req.ContentType)
	}
	if len(req.Language) > maxLanguageCode {
		errs["language"] = fmt.Sprintf("language must be at most %d characters", maxLanguageCode)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
