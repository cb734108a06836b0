package registry

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Principal is an authenticated caller identity. The registry treats it as
// an opaque string supplied by the identity layer; it never validates or
// derives anything from its contents.
type Principal string

// Role is a global capability held by a principal.
type Role string

const (
	// RoleSuperAdmin is held by exactly one bootstrap principal, fixed at
	// initialization. No operation grants or revokes it.
	RoleSuperAdmin Role = "superadmin"
	// RoleAdministrator may register patients, manage role membership,
	// manage per-patient authorizations, and operate the circuit breaker.
	RoleAdministrator Role = "administrator"
	// RoleDoctor marks a principal as eligible for per-patient
	// authorization. It does not by itself grant record access.
	RoleDoctor Role = "doctor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdministrator, RoleDoctor:
		return true
	}
	return false
}

// HashSize is the size in bytes of a content hash or identity commitment.
const HashSize = 32

// Hash is a 256-bit content hash or identity commitment. The registry never
// sees the preimage; callers compute hashes over canonical record content.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the lowercase hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a 64-character hex string into a Hash. A "0x" prefix
// is accepted and stripped.
func ParseHash(s string) (Hash, error) {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	var h Hash
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("hash must be %d hex characters, got %d", HashSize*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash encoding: %w", err)
	}
	copy(h[:], b)
	return h, nil
}

// MarshalText implements encoding.TextMarshaler, so hashes serialize as hex
// strings in JSON bodies and as map keys.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Patient is a registration record in the patient directory. IdentityHash
// commits to the patient's identifying data without storing it in clear and
// is immutable once set. Deactivation flips Active but never deletes the
// record: a patient identifier is registered at most once over the lifetime
// of the system.
type Patient struct {
	ID           string    `json:"patient_id"`
	IdentityHash Hash      `json:"identity_hash"`
	Active       bool      `json:"active"`
	RegisteredAt time.Time `json:"registered_at"`
	RegisteredBy Principal `json:"registered_by"`
}

// Record is the metadata stored for a medical record content hash. The hash
// is the key; the content itself lives in an external document store.
type Record struct {
	Hash      Hash      `json:"record_hash"`
	PatientID string    `json:"patient_id"`
	Type      string    `json:"record_type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	Author    Principal `json:"author"`
}

// Stats is a point-in-time snapshot of the registry counters, served by the
// verification facade for dashboards and as a cheap audit signal.
type Stats struct {
	TotalPatients uint64 `json:"total_patients"`
	TotalRecords  uint64 `json:"total_records"`
	EventCount    uint64 `json:"event_count"`
	Paused        bool   `json:"paused"`
	Version       uint64 `json:"version"`
}
