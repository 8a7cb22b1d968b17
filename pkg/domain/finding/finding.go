package finding

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sentinelsec/sentinel-core/pkg/types"
)

// Finding is a persisted, deduplicated vulnerability record. One row exists
// per content signature; repeated sightings bump HitCount and LastSeenAt
// instead of inserting a new row.
type Finding struct {
	ID          uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	PluginID    string           `json:"plugin_id" gorm:"index"`
	VulnType    string           `json:"vuln_type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Evidence    string           `json:"evidence" gorm:"type:text"`
	Location    string           `json:"location"`
	Severity    types.Severity   `json:"severity"`
	Confidence  types.Confidence `json:"confidence"`
	CWE         string           `json:"cwe,omitempty"`
	OWASP       string           `json:"owasp,omitempty"`
	Remediation string           `json:"remediation,omitempty" gorm:"type:text"`

	URL             string `json:"url"`
	Method          string `json:"method"`
	ResponseStatus  int    `json:"response_status,omitempty"`
	RequestHeaders  string `json:"request_headers,omitempty" gorm:"type:text"`
	RequestBody     string `json:"request_body,omitempty" gorm:"type:text"`
	ResponseHeaders string `json:"response_headers,omitempty" gorm:"type:text"`
	ResponseBody    string `json:"response_body,omitempty" gorm:"type:text"`

	Signature   string    `json:"signature" gorm:"uniqueIndex"`
	HitCount    int       `json:"hit_count" gorm:"default:1"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (f *Finding) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}

	now := time.Now()
	f.CreatedAt = now
	f.UpdatedAt = now
	if f.FirstSeenAt.IsZero() {
		f.FirstSeenAt = now
	}
	if f.LastSeenAt.IsZero() {
		f.LastSeenAt = now
	}
	if f.HitCount == 0 {
		f.HitCount = 1
	}

	return f.Validate()
}

func (f *Finding) BeforeUpdate(tx *gorm.DB) error {
	f.UpdatedAt = time.Now()
	return nil
}

func (f *Finding) Validate() error {
	if f.VulnType == "" {
		return fmt.Errorf("vuln_type is required")
	}

	if f.Title == "" {
		return fmt.Errorf("title is required")
	}

	if f.Signature == "" {
		return fmt.Errorf("signature is required")
	}

	if f.Severity == "" {
		f.Severity = types.SeverityMedium
	}

	if f.Confidence == "" {
		f.Confidence = types.ConfidenceMedium
	}

	return nil
}

func (f *Finding) TableName() string {
	return "public.findings"
}

// FromScan builds the persisted form of an in-flight finding with its
// computed signature.
func FromScan(src *types.Finding, signature string) *Finding {
	return &Finding{
		PluginID:        src.PluginID,
		VulnType:        src.VulnType,
		Title:           src.Title,
		Description:     src.Description,
		Evidence:        src.Evidence,
		Location:        src.Location,
		Severity:        src.Severity,
		Confidence:      src.Confidence,
		CWE:             src.CWE,
		OWASP:           src.OWASP,
		Remediation:     src.Remediation,
		URL:             src.URL,
		Method:          src.Method,
		ResponseStatus:  src.ResponseStatus,
		RequestHeaders:  src.RequestHeaders,
		RequestBody:     src.RequestBody,
		ResponseHeaders: src.ResponseHeaders,
		ResponseBody:    src.ResponseBody,
		Signature:       signature,
		FirstSeenAt:     src.Timestamp,
		LastSeenAt:      src.Timestamp,
	}
}
