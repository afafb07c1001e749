// Package audit records security-relevant events to PostgreSQL.
//
// Every permission mutation, bucket lifecycle change, and session teardown
// produces an Event. Writers treat logging as best-effort: a failed audit
// insert is logged and swallowed, it never rolls back the operation it
// describes. A cron-driven Janitor trims events past the retention window.
package audit
