// Package id provides unique identifier generation for split jobs.
package id

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const prefix = "split-"

var pattern = regexp.MustCompile(`^split-\d+-[0-9a-f]{8}$`)

// Generate creates a new unique job ID.
// Format: split-<unix seconds>-<8 hex digits>
// Example: split-1701432000-a1b2c3d4
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%d-%s", prefix, time.Now().Unix(), random[:8])
}

// Valid reports whether s has the shape of a generated job ID.
func Valid(s string) bool {
	return strings.HasPrefix(s, prefix) && pattern.MatchString(s)
}
