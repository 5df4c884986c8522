package service

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a compact random identifier for local records.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
