package payment

import (
	"strings"

	"github.com/google/uuid"
)

// maxHashAttempts bounds regeneration on a unique-index collision.
const maxHashAttempts = 5

type HashGenerator func() (string, error)

// NewHash returns a 32 character hex token derived from a time-ordered UUID.
func NewHash() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
