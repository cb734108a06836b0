package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Service is the patient-record registry: role table, patient directory,
// authorization graph, record ledger, and circuit breaker behind a single
// writer lock. Every mutating operation is atomic and totally ordered
// relative to every other mutator; reads observe the state as of the last
// committed mutation. Each successful mutator appends exactly one event to
// the log and returns it.
type Service struct {
	mu sync.RWMutex

	roles    RoleStore
	patients PatientStore
	auth     AuthorizationStore
	records  RecordStore
	log      *EventLog

	superAdmin Principal
	paused     bool

	patientCount uint64
	recordCount  uint64
	version      uint64

	clock  func() time.Time
	logger zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the timestamp source. Tests use this for
// deterministic event times.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger attaches a structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithStores replaces the default in-memory stores.
func WithStores(roles RoleStore, patients PatientStore, auth AuthorizationStore, records RecordStore) Option {
	return func(s *Service) {
		s.roles = roles
		s.patients = patients
		s.auth = auth
		s.records = records
	}
}

// NewService creates a registry with superAdmin as the bootstrap principal.
// The bootstrap principal holds SuperAdmin and Administrator immediately
// after initialization; both grants appear in the event log.
func NewService(superAdmin Principal, opts ...Option) *Service {
	s := &Service{
		roles:      NewMemRoleStore(),
		patients:   NewMemPatientStore(),
		auth:       NewMemAuthorizationStore(),
		records:    NewMemRecordStore(),
		log:        NewEventLog(),
		superAdmin: superAdmin,
		clock:      time.Now,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}

	s.roles.Grant(RoleSuperAdmin, superAdmin)
	s.roles.Grant(RoleAdministrator, superAdmin)
	now := s.clock().UTC()
	s.log.Append(Event{Type: EventRoleGranted, Actor: superAdmin, Role: RoleSuperAdmin, Target: superAdmin, Timestamp: now})
	s.log.Append(Event{Type: EventRoleGranted, Actor: superAdmin, Role: RoleAdministrator, Target: superAdmin, Timestamp: now})
	s.version = 2
	return s
}

// Log returns the registry's append-only event log.
func (s *Service) Log() *EventLog {
	return s.log
}

// isAdmin reports whether p may perform administrator-gated operations.
func (s *Service) isAdmin(p Principal) bool {
	return s.roles.Has(RoleAdministrator, p) || s.roles.Has(RoleSuperAdmin, p)
}

// emit appends ev to the log, bumps the state version, and logs it.
// Callers hold the writer lock.
func (s *Service) emit(ev Event) *Event {
	ev.Timestamp = s.clock().UTC()
	ev = s.log.Append(ev)
	s.version++
	s.logger.Info().
		Str("event", string(ev.Type)).
		Uint64("seq", ev.Seq).
		Str("actor", string(ev.Actor)).
		Str("patient_id", ev.PatientID).
		Msg("registry event")
	return &ev
}

// -- Role registry --

// GrantRole grants role to target. Only administrators may grant roles;
// SuperAdmin cannot be granted. Granting an already-held role succeeds as a
// no-op but still emits RoleGranted.
func (s *Service) GrantRole(actor Principal, role Role, target Principal) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil, ErrSystemPaused
	}
	if role == RoleSuperAdmin {
		return nil, ErrNotAuthorized
	}
	if !s.isAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	if !role.Valid() || target == "" {
		return nil, ErrInvalidInput
	}

	s.roles.Grant(role, target)
	return s.emit(Event{Type: EventRoleGranted, Actor: actor, Role: role, Target: target}), nil
}

// RevokeRole revokes role from target. Self-demotion is permitted, but a
// revocation that would leave zero administrators fails with ErrLastAdmin.
// Revoking an unheld role succeeds as a no-op and still emits RoleRevoked.
func (s *Service) RevokeRole(actor Principal, role Role, target Principal) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil, ErrSystemPaused
	}
	if role == RoleSuperAdmin {
		return nil, ErrNotAuthorized
	}
	if !s.isAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	if !role.Valid() || target == "" {
		return nil, ErrInvalidInput
	}
	if role == RoleAdministrator && s.roles.Has(RoleAdministrator, target) && s.roles.Count(RoleAdministrator) == 1 {
		return nil, ErrLastAdmin
	}

	s.roles.Revoke(role, target)
	return s.emit(Event{Type: EventRoleRevoked, Actor: actor, Role: role, Target: target}), nil
}

// HasRole reports whether p currently holds role. Pure read, callable by
// anyone.
func (s *Service) HasRole(role Role, p Principal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles.Has(role, p)
}

// -- Patient directory --

// RegisterPatient creates a patient registration. Registration is strictly
// once-only: an identifier that ever existed, active or not, cannot be
// registered again.
func (s *Service) RegisterPatient(actor Principal, patientID string, identityHash Hash) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil, ErrSystemPaused
	}
	if !s.isAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	if patientID == "" || identityHash.IsZero() {
		return nil, ErrInvalidInput
	}
	if _, ok := s.patients.Get(patientID); ok {
		return nil, ErrAlreadyRegistered
	}

	now := s.clock().UTC()
	s.patients.Put(&Patient{
		ID:           patientID,
		IdentityHash: identityHash,
		Active:       true,
		RegisteredAt: now,
		RegisteredBy: actor,
	})
	s.patientCount++
	return s.emit(Event{
		Type:         EventPatientRegistered,
		Actor:        actor,
		PatientID:    patientID,
		IdentityHash: identityHash.String(),
	}), nil
}

// DeactivatePatient soft-deletes a patient: the registration and all
// historical records remain, but the patient no longer accepts new
// authorizations or records. Deactivating an already-inactive patient is a
// no-op that still emits PatientDeactivated.
func (s *Service) DeactivatePatient(actor Principal, patientID string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil, ErrSystemPaused
	}
	if !s.isAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	if patientID == "" {
		return nil, ErrInvalidInput
	}
	p, ok := s.patients.Get(patientID)
	if !ok {
		return nil, ErrUnknownPatient
	}

	p.Active = false
	s.patients.Put(p)
	return s.emit(Event{Type: EventPatientDeactivated, Actor: actor, PatientID: patientID}), nil
}

// GetPatient returns the registration record for patientID.
func (s *Service) GetPatient(patientID string) (*Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patients.Get(patientID)
}

// -- Authorization graph --

// AuthorizeDoctor grants doctor the per-patient capability to add and read
// the patient's records. The target need not hold the global Doctor role:
// the edge is an independent capability. Re-granting an active edge is a
// no-op that still emits DoctorAuthorized.
func (s *Service) AuthorizeDoctor(actor Principal, patientID string, doctor Principal) (*Event, error) {
	return s.setAuthorization(actor, patientID, doctor, true)
}

// RevokeDoctor removes the per-patient authorization edge.
func (s *Service) RevokeDoctor(actor Principal, patientID string, doctor Principal) (*Event, error) {
	return s.setAuthorization(actor, patientID, doctor, false)
}

func (s *Service) setAuthorization(actor Principal, patientID string, doctor Principal, authorized bool) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil, ErrSystemPaused
	}
	if !s.isAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	if patientID == "" || doctor == "" {
		return nil, ErrInvalidInput
	}
	p, ok := s.patients.Get(patientID)
	if !ok || !p.Active {
		return nil, ErrUnknownPatient
	}

	s.auth.Set(patientID, doctor, authorized)
	typ := EventDoctorAuthorized
	if !authorized {
		typ = EventDoctorRevoked
	}
	return s.emit(Event{Type: typ, Actor: actor, PatientID: patientID, Doctor: doctor}), nil
}

// IsAuthorizedDoctor reports the current edge value. Pure read; unknown
// patients yield false rather than an error.
func (s *Service) IsAuthorizedDoctor(patientID string, doctor Principal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auth.Get(patientID, doctor)
}

// -- Record ledger --

// AddRecord stores record metadata under its content hash and appends the
// hash to the patient's index. The caller must hold an active authorization
// edge for the patient. A hash that already exists anywhere in the ledger
// is rejected: one hash, one record.
func (s *Service) AddRecord(actor Principal, patientID string, recordHash Hash, recordType string) (*Record, *Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return nil, nil, ErrSystemPaused
	}
	if patientID == "" || recordHash.IsZero() {
		return nil, nil, ErrInvalidInput
	}
	p, ok := s.patients.Get(patientID)
	if !ok || !p.Active {
		return nil, nil, ErrUnknownPatient
	}
	if !s.auth.Get(patientID, actor) {
		return nil, nil, ErrNotAuthorized
	}
	if _, exists := s.records.Get(recordHash); exists {
		return nil, nil, ErrDuplicateRecord
	}

	rec := &Record{
		Hash:      recordHash,
		PatientID: patientID,
		Type:      recordType,
		Active:    true,
		CreatedAt: s.clock().UTC(),
		Author:    actor,
	}
	s.records.Put(rec)
	s.records.AppendIndex(patientID, recordHash)
	s.recordCount++
	ev := s.emit(Event{
		Type:       EventRecordAdded,
		Actor:      actor,
		PatientID:  patientID,
		RecordHash: recordHash.String(),
		RecordType: recordType,
	})
	return rec, ev, nil
}

// GetPatientRecords returns the patient's record hashes in submission
// order. It errors with ErrUnknownPatient for identifiers that were never
// registered, distinguishing "no records yet" from "no such patient";
// deactivated patients still list their history.
func (s *Service) GetPatientRecords(patientID string) ([]Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.patients.Get(patientID); !ok {
		return nil, ErrUnknownPatient
	}
	return s.records.Index(patientID), nil
}

// GetRecord returns the metadata stored for a hash, or found=false.
func (s *Service) GetRecord(h Hash) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records.Get(h)
}

// -- Verification facade --

// VerifyRecord reports whether a record with this hash exists and is
// active. It never errors: unknown hashes verify false. This is the public
// entry point that lets any party confirm integrity without holding a role.
func (s *Service) VerifyRecord(h Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records.Get(h)
	return ok && r.Active
}

// TotalPatients returns the count of successful registrations.
func (s *Service) TotalPatients() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patientCount
}

// TotalRecords returns the count of successful record additions.
func (s *Service) TotalRecords() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordCount
}

// Snapshot returns the current counters, pause flag, and state version.
func (s *Service) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalPatients: s.patientCount,
		TotalRecords:  s.recordCount,
		EventCount:    s.log.Len(),
		Paused:        s.paused,
		Version:       s.version,
	}
}

// -- Circuit breaker --

// Pause engages the circuit breaker: every subsequent mutator fails with
// ErrSystemPaused until Unpause. Reads are unaffected. Pause itself is not
// gated on the flag, so an administrator can always operate the breaker.
func (s *Service) Pause(actor Principal) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	s.paused = true
	return s.emit(Event{Type: EventSystemPaused, Actor: actor}), nil
}

// Unpause releases the circuit breaker.
func (s *Service) Unpause(actor Principal) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isAdmin(actor) {
		return nil, ErrNotAuthorized
	}
	s.paused = false
	return s.emit(Event{Type: EventSystemUnpaused, Actor: actor}), nil
}

// Paused reports the circuit breaker state.
func (s *Service) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}
