package common

import (
	"github.com/google/uuid"
)

// NewSessionID generates a unique session ID with the "sess_" prefix
func NewSessionID() string {
	return "sess_" + uuid.New().String()
}

// NewHistoryEntryID generates a unique history entry ID with the "hist_" prefix
func NewHistoryEntryID() string {
	return "hist_" + uuid.New().String()
}

// NewMarkerID generates a unique marker ID with the "mk_" prefix
func NewMarkerID() string {
	return "mk_" + uuid.New().String()
}
