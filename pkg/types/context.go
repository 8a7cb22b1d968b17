package types

import (
	"time"
)

// RequestContext represents one intercepted HTTP request as captured by the
// proxy. It is read-only to the scan pipeline; the optional Edited* fields
// carry user overrides applied in the interceptor before forwarding.
type RequestContext struct {
	ID          string            `json:"request_id"`
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body"`
	ContentType string            `json:"content_type,omitempty"`
	QueryParams map[string]string `json:"query_params"`
	IsHTTPS     bool              `json:"is_https"`
	Timestamp   time.Time         `json:"timestamp"`

	WasEdited     bool              `json:"was_edited,omitempty"`
	EditedMethod  string            `json:"edited_method,omitempty"`
	EditedURL     string            `json:"edited_url,omitempty"`
	EditedHeaders map[string]string `json:"edited_headers,omitempty"`
	EditedBody    []byte            `json:"edited_body,omitempty"`
}

// ResponseContext represents the response matched to a RequestContext by
// request id.
type ResponseContext struct {
	RequestID string            `json:"request_id"`
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
	Body      []byte            `json:"body"`
	Timestamp time.Time         `json:"timestamp"`

	WasEdited     bool              `json:"was_edited,omitempty"`
	EditedStatus  int               `json:"edited_status,omitempty"`
	EditedHeaders map[string]string `json:"edited_headers,omitempty"`
	EditedBody    []byte            `json:"edited_body,omitempty"`
}
