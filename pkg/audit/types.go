package audit

import "time"

// Action identifies what happened
type Action string

const (
	// Permission mutations
	ActionSetPermission Action = "permission.set"

	// Bucket lifecycle
	ActionBucketCreate Action = "bucket.create"
	ActionBucketDelete Action = "bucket.delete"
)

// Status represents the outcome of the audited operation
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// ResourceType identifies the domain of the audited resource
type ResourceType string

const (
	ResourceTypeBucket  ResourceType = "bucket"
	ResourceTypeStorage ResourceType = "storage"
	ResourceTypePrompt  ResourceType = "prompt"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Status    Status    `json:"status"`

	// Actor
	UserID    *int64 `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Resource; for permission mutations ResourceID is the compound
	// "{entityType}:{entityId}:{resourceId}" string
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Details carries the mutation payload (entity type/id, resource id, level)
	Details map[string]interface{} `json:"details,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// SearchFilter represents filters for searching audit events
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID  *int64
	Actions []Action
	Status  *Status

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
