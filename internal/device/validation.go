package device

import (
	"fmt"
	"strings"
	"unicode"
)

// Validation constants.
const (
	maxIDLength       = 64
	maxNameLength     = 100
	maxLocationLength = 200

	// topicUnsafeChars are MQTT topic structure characters. Device IDs are
	// substituted into devices/{id}/status literally, so these would corrupt
	// the topic or turn it into a wildcard subscription.
	topicUnsafeChars = "/#+"
)

// ValidateID checks that a device identifier is usable as a registry key and
// safe for literal MQTT topic substitution.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidID, maxIDLength)
	}
	if strings.ContainsAny(id, topicUnsafeChars) {
		return fmt.Errorf("%w: must not contain '/', '#' or '+'", ErrInvalidID)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: must not contain whitespace or control characters", ErrInvalidID)
		}
	}
	return nil
}

// ValidateName checks that a device display name is present and within limits.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateLocation checks the free-text location field. Empty is allowed.
func ValidateLocation(location string) error {
	if len(location) > maxLocationLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidLocation, maxLocationLength)
	}
	return nil
}
