package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"ledgerdash/internal/core"
	"ledgerdash/internal/table"
)

// ExportJobMessage asks a worker to export the filtered view of a resource.
// The worker loads the resource itself; only the criteria travel.
type ExportJobMessage struct {
	JobID       string    `json:"job_id"`
	Resource    string    `json:"resource"`
	Search      string    `json:"search,omitempty"`
	From        core.Date `json:"from"`
	To          core.Date `json:"to"`
	Destination string    `json:"destination,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewExportJobMessage creates a job message with a fresh job ID
func NewExportJobMessage(resource string, c table.Criteria, destination string) *ExportJobMessage {
	return &ExportJobMessage{
		JobID:       uuid.NewString(),
		Resource:    resource,
		Search:      c.Search,
		From:        c.From,
		To:          c.To,
		Destination: destination,
		Timestamp:   time.Now(),
	}
}

// Criteria returns the filter the job applies before exporting.
func (m *ExportJobMessage) Criteria() table.Criteria {
	return table.Criteria{Search: m.Search, From: m.From, To: m.To}
}

// Validate checks the fields a worker cannot do without.
func (m *ExportJobMessage) Validate() error {
	if strings.TrimSpace(m.JobID) == "" {
		return errors.New("missing job_id")
	}
	if strings.TrimSpace(m.Resource) == "" {
		return errors.New("missing resource")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *ExportJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportJobMessageFromJSON creates a message from JSON bytes
func ExportJobMessageFromJSON(data []byte) (*ExportJobMessage, error) {
	var msg ExportJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
