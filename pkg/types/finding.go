package types

import (
	"strings"
	"time"
)

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// ParseSeverity maps plugin-supplied severity strings onto the enum.
// Unknown values fall back to medium rather than failing the finding.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	case "info", "informational":
		return SeverityInfo
	default:
		return SeverityMedium
	}
}

// Confidence expresses how certain a plugin is about a finding.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence maps plugin-supplied confidence strings onto the enum,
// defaulting to medium for unknown values.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "certain":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	case "low", "tentative":
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// Finding is a potential vulnerability in flight between a plugin and the
// deduplication stage. The plugin supplies the detection fields; the scan
// pipeline attaches the audit context (URL, method, headers, bodies) before
// the finding enters the queue. Headers are serialized JSON objects; bodies
// are plain text or carry the "[BASE64]" prefix when the raw bytes were not
// valid UTF-8.
type Finding struct {
	PluginID    string     `json:"plugin_id"`
	VulnType    string     `json:"vuln_type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Evidence    string     `json:"evidence"`
	Location    string     `json:"location"`
	Severity    Severity   `json:"severity"`
	Confidence  Confidence `json:"confidence"`
	CWE         string     `json:"cwe,omitempty"`
	OWASP       string     `json:"owasp,omitempty"`
	Remediation string     `json:"remediation,omitempty"`

	URL             string    `json:"url,omitempty"`
	Method          string    `json:"method,omitempty"`
	ResponseStatus  int       `json:"response_status,omitempty"`
	RequestHeaders  string    `json:"request_headers,omitempty"`
	RequestBody     string    `json:"request_body,omitempty"`
	ResponseHeaders string    `json:"response_headers,omitempty"`
	ResponseBody    string    `json:"response_body,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

