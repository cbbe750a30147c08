// Package kv is the key/value backend that lecture data, recorded audio and
// the assistant credential are persisted to.
package kv

import (
	"fmt"
	"regexp"
)

// Store is the interface for key/value persistence.
type Store interface {
	// Get returns the value stored under key, or apperr.ErrNotFound.
	Get(key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Keys lists every key starting with prefix, sorted.
	Keys(prefix string) ([]string, error)
	Close() error
}

var keyRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidKey rejects keys that cannot be used as file names or are empty.
func ValidKey(key string) error {
	if !keyRe.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("kv: invalid key %q", key)
	}
	return nil
}
