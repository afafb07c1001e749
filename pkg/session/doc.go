// Package session stores authenticated sessions in Redis.
package session
