// Package jobs issues identifiers for pipeline runs.
package jobs

import (
	"strings"

	"github.com/google/uuid"
)

// RunPrefix is prepended to every batch run ID.
const RunPrefix = "run-"

// NewRunID returns a random run ID such as "run-1b4e28ba2fa1...". The ID is
// the history table sort key and the correlation field in logs and events.
func NewRunID() string {
	return RunPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsRunID reports whether id has the shape produced by NewRunID.
func IsRunID(id string) bool {
	rest, ok := strings.CutPrefix(id, RunPrefix)
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
