package buckets

import "time"

// Bucket is one document bucket. The id doubles as the permission resource id
// and (prefixed) as the physical object-store bucket name.
type Bucket struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
}
