package traffic

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is one audited request/response pair captured by the proxy. It is
// persisted independently of plugin results so the traffic history survives
// even when every plugin fails. Bodies hold text, or base64 behind the
// "[BASE64]" prefix when the raw bytes were not valid UTF-8.
type Record struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	URL             string    `json:"url"`
	Host            string    `json:"host" gorm:"index"`
	Protocol        string    `json:"protocol"`
	Path            string    `json:"path"`
	Method          string    `json:"method"`
	StatusCode      int       `json:"status_code"`
	RequestHeaders  string    `json:"request_headers,omitempty" gorm:"type:text"`
	RequestBody     string    `json:"request_body,omitempty" gorm:"type:text"`
	ResponseHeaders string    `json:"response_headers,omitempty" gorm:"type:text"`
	ResponseBody    string    `json:"response_body,omitempty" gorm:"type:text"`
	ResponseSize    int64     `json:"response_size"`
	ResponseTimeMs  int64     `json:"response_time"`
	Timestamp       time.Time `json:"timestamp" gorm:"index"`

	WasEdited             bool   `json:"was_edited"`
	EditedMethod          string `json:"edited_method,omitempty"`
	EditedURL             string `json:"edited_url,omitempty"`
	EditedRequestHeaders  string `json:"edited_request_headers,omitempty" gorm:"type:text"`
	EditedRequestBody     string `json:"edited_request_body,omitempty" gorm:"type:text"`
	EditedResponseHeaders string `json:"edited_response_headers,omitempty" gorm:"type:text"`
	EditedResponseBody    string `json:"edited_response_body,omitempty" gorm:"type:text"`
	EditedStatusCode      int    `json:"edited_status_code,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	return r.Validate()
}

func (r *Record) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("url is required")
	}

	if r.Method == "" {
		return fmt.Errorf("method is required")
	}

	if r.Host == "" {
		r.Host = "unknown"
	}

	if r.Protocol == "" {
		r.Protocol = "http"
	}

	if r.Path == "" {
		r.Path = "/"
	}

	return nil
}

func (r *Record) TableName() string {
	return "public.traffic_records"
}
