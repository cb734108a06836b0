package registry

// State lives behind narrow store interfaces so the authoritative ledger
// stays swappable and testable. The Service owns all mutation; stores never
// enforce invariants themselves.

// RoleStore holds global role membership.
type RoleStore interface {
	Grant(role Role, p Principal)
	Revoke(role Role, p Principal)
	Has(role Role, p Principal) bool
	// Count returns the number of principals currently holding role.
	Count(role Role) int
}

// PatientStore holds the patient directory. Get must return registered
// patients in any state; entries are never deleted.
type PatientStore interface {
	Put(p *Patient)
	Get(id string) (*Patient, bool)
	Len() int
}

// AuthorizationStore holds the per-(patient, doctor) authorization edges.
type AuthorizationStore interface {
	Set(patientID string, doctor Principal, authorized bool)
	// Get returns the current edge value; false for unknown pairs.
	Get(patientID string, doctor Principal) bool
}

// RecordStore holds record metadata keyed by content hash plus the
// append-only per-patient index of hashes in submission order.
type RecordStore interface {
	Put(r *Record)
	Get(h Hash) (*Record, bool)
	AppendIndex(patientID string, h Hash)
	// Index returns the patient's record hashes in submission order.
	Index(patientID string) []Hash
	Len() int
}
