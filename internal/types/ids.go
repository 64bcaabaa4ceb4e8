package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ID is a UUID-backed identifier. Documents, chunks, and entities all carry
// IDs of this type; the string form is what lands in the graph and vector
// stores, so it must round-trip losslessly.
type ID string

// NewID generates a new random (v4) ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// DeterministicID derives an ID from a name within a fixed namespace (UUID
// v5). The same name always yields the same ID, which is what makes document
// identity and entity merge keys stable across ingestion runs.
func DeterministicID(name string) ID {
	return ID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String())
}

// ParseID validates s as a UUID and returns it as an ID.
func ParseID(s string) (ID, error) {
	if s == "" {
		return "", fmt.Errorf("ID cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID format: %w", err)
	}
	return ID(parsed.String()), nil
}

// Validate checks the ID is a well-formed, non-empty UUID.
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("ID cannot be empty")
	}
	if _, err := uuid.Parse(string(id)); err != nil {
		return fmt.Errorf("invalid UUID format: %w", err)
	}
	return nil
}

// String returns the canonical string form.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is unset.
func (id ID) IsZero() bool {
	return id == ""
}

// MarshalJSON serializes the ID as a JSON string, null when unset.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON parses and validates a JSON string into the ID.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to unmarshal ID: %w", err)
	}
	if s == "" {
		*id = ""
		return nil
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
