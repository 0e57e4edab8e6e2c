package common

import (
	"github.com/google/uuid"
)

// NewContractID generates a unique contract identifier
func NewContractID() string {
	return uuid.New().String()
}

// NewAgentID generates a unique agent identifier
func NewAgentID() string {
	return uuid.New().String()
}

// IsUUID reports whether s parses as a UUID
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
