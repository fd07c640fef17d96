// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"strings"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// ProfileID identifies a user profile (UUID format).
type ProfileID string

// String returns the string representation.
func (p ProfileID) String() string {
	return string(p)
}

// IsValid checks that the profile ID is a well-formed UUID.
func (p ProfileID) IsValid() bool {
	_, err := uuid.Parse(string(p))
	return err == nil
}

// NewProfileID parses and normalizes a profile ID.
func NewProfileID(raw string) (ProfileID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", WrapError("profile", "Validate", ErrInvalidID, "invalid profile ID", err)
	}
	return ProfileID(id.String()), nil
}

// GenerateProfileID returns a fresh random profile ID.
func GenerateProfileID() ProfileID {
	return ProfileID(uuid.NewString())
}

// ═══════════════════════════════════════════════════════════════════════════
// Module
// ═══════════════════════════════════════════════════════════════════════════

// Module is one of the four life domains a task belongs to.
type Module int

const (
	ModuleSchool Module = iota + 1
	ModuleWork
	ModuleHomeLife
	ModuleFinance
)

// AllModules lists every module in a stable order.
var AllModules = []Module{ModuleSchool, ModuleWork, ModuleHomeLife, ModuleFinance}

var moduleNames = map[Module]string{
	ModuleSchool:   "SCHOOL",
	ModuleWork:     "WORK",
	ModuleHomeLife: "HOMELIFE",
	ModuleFinance:  "FINANCE",
}

// String returns the canonical upper-case name.
func (m Module) String() string {
	if name, ok := moduleNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsValid reports whether m is one of the closed set of modules.
func (m Module) IsValid() bool {
	_, ok := moduleNames[m]
	return ok
}

// ParseModule parses a module name case-insensitively. "home_life" and
// "home-life" are accepted as spellings of HOMELIFE.
func ParseModule(s string) (Module, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.NewReplacer("_", "", "-", "", " ", "").Replace(normalized)
	for m, name := range moduleNames {
		if name == normalized {
			return m, nil
		}
	}
	return 0, ErrInvalidModule
}

// MarshalText implements encoding.TextMarshaler.
func (m Module) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Module) UnmarshalText(text []byte) error {
	parsed, err := ParseModule(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
