// Package objectstore manages the physical S3/MinIO buckets behind the bucket
// domain.
package objectstore
