// Package sink persists archived content: to a local directory, or to an
// S3-compatible bucket such as the archival service's.
package sink

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeName is returned for item names that cannot be used as a file
// or object name under the sink root.
var ErrUnsafeName = errors.New("unsafe item name")

// DefaultExt is appended to every persisted wiki name.
const DefaultExt = ".md"

// ValidateName rejects names that are empty, contain a path separator or
// NUL, or are a relative directory reference.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrUnsafeName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrUnsafeName, name)
	}
	return nil
}
