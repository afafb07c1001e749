// Package buckets implements the document-bucket domain: metadata rows in
// PostgreSQL, physical buckets in S3/MinIO, and visibility driven by the
// bucket permission engine.
package buckets
