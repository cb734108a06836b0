package registry

import (
	"errors"
	"testing"
	"time"
)

const admin = Principal("admin-1")

func testHash(b byte) Hash {
	var h Hash
	h[0] = b
	h[HashSize-1] = b
	return h
}

func newTestService() *Service {
	return NewService(admin)
}

// registerTestPatient registers a patient as the bootstrap admin.
func registerTestPatient(t *testing.T, svc *Service, id string, b byte) {
	t.Helper()
	if _, err := svc.RegisterPatient(admin, id, testHash(b)); err != nil {
		t.Fatalf("register patient %s: %v", id, err)
	}
}

// -- Bootstrap --

func TestNewService_Bootstrap(t *testing.T) {
	svc := newTestService()

	if !svc.HasRole(RoleSuperAdmin, admin) {
		t.Error("expected bootstrap principal to hold superadmin")
	}
	if !svc.HasRole(RoleAdministrator, admin) {
		t.Error("expected bootstrap principal to hold administrator")
	}
	if got := svc.Log().Len(); got != 2 {
		t.Errorf("expected 2 bootstrap events, got %d", got)
	}
	stats := svc.Snapshot()
	if stats.Version != 2 {
		t.Errorf("expected version 2 after bootstrap, got %d", stats.Version)
	}
	if stats.TotalPatients != 0 || stats.TotalRecords != 0 {
		t.Errorf("expected zero counters, got %+v", stats)
	}
}

func TestNewService_WithClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(admin, WithClock(func() time.Time { return fixed }))

	ev, err := svc.RegisterPatient(admin, "p-1", testHash(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.Timestamp.Equal(fixed) {
		t.Errorf("expected fixed timestamp, got %v", ev.Timestamp)
	}
}

// -- Roles --

func TestGrantRole(t *testing.T) {
	svc := newTestService()

	ev, err := svc.GrantRole(admin, RoleDoctor, "dr-house")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != EventRoleGranted {
		t.Errorf("expected role.granted event, got %s", ev.Type)
	}
	if !svc.HasRole(RoleDoctor, "dr-house") {
		t.Error("expected dr-house to hold doctor role")
	}
}

func TestGrantRole_NotAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.GrantRole("rando", RoleDoctor, "dr-house")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestGrantRole_SuperAdminImmutable(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GrantRole(admin, RoleSuperAdmin, "usurper"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized granting superadmin, got %v", err)
	}
	if _, err := svc.RevokeRole(admin, RoleSuperAdmin, admin); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized revoking superadmin, got %v", err)
	}
	if !svc.HasRole(RoleSuperAdmin, admin) {
		t.Error("superadmin must survive revocation attempts")
	}
}

func TestGrantRole_InvalidInput(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GrantRole(admin, Role("janitor"), "x"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown role, got %v", err)
	}
	if _, err := svc.GrantRole(admin, RoleDoctor, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty target, got %v", err)
	}
}

func TestGrantRole_IdempotentStillEmits(t *testing.T) {
	svc := newTestService()

	before := svc.Log().Len()
	if _, err := svc.GrantRole(admin, RoleDoctor, "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GrantRole(admin, RoleDoctor, "dr-house"); err != nil {
		t.Fatalf("unexpected error on re-grant: %v", err)
	}
	if got := svc.Log().Len(); got != before+2 {
		t.Errorf("expected both grants to emit events, got %d new", got-before)
	}
}

func TestRevokeRole(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GrantRole(admin, RoleDoctor, "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ev, err := svc.RevokeRole(admin, RoleDoctor, "dr-house")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != EventRoleRevoked {
		t.Errorf("expected role.revoked event, got %s", ev.Type)
	}
	if svc.HasRole(RoleDoctor, "dr-house") {
		t.Error("expected doctor role revoked")
	}
}

func TestRevokeRole_LastAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.RevokeRole(admin, RoleAdministrator, admin)
	if !errors.Is(err, ErrLastAdmin) {
		t.Errorf("expected ErrLastAdmin, got %v", err)
	}
	if !svc.HasRole(RoleAdministrator, admin) {
		t.Error("last administrator must remain")
	}
}

func TestRevokeRole_SelfDemotionWithSecondAdmin(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GrantRole(admin, RoleAdministrator, "admin-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RevokeRole(admin, RoleAdministrator, admin); err != nil {
		t.Fatalf("self-demotion with a second admin should succeed: %v", err)
	}
	if svc.HasRole(RoleAdministrator, admin) {
		t.Error("expected administrator revoked")
	}
	// Still an admin through superadmin, so admin-gated ops keep working.
	if _, err := svc.RegisterPatient(admin, "p-after", testHash(9)); err != nil {
		t.Errorf("superadmin should still pass admin checks: %v", err)
	}
}

func TestRevokeRole_UnheldStillEmits(t *testing.T) {
	svc := newTestService()

	before := svc.Log().Len()
	if _, err := svc.RevokeRole(admin, RoleDoctor, "never-held"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.Log().Len(); got != before+1 {
		t.Errorf("expected no-op revoke to emit an event")
	}
}

// -- Patients --

func TestRegisterPatient(t *testing.T) {
	svc := newTestService()

	ev, err := svc.RegisterPatient(admin, "p-1", testHash(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != EventPatientRegistered {
		t.Errorf("expected patient.registered, got %s", ev.Type)
	}
	if ev.IdentityHash != testHash(1).String() {
		t.Errorf("expected identity hash on event, got %s", ev.IdentityHash)
	}

	p, ok := svc.GetPatient("p-1")
	if !ok {
		t.Fatal("expected patient to exist")
	}
	if !p.Active {
		t.Error("expected new patient active")
	}
	if p.RegisteredBy != admin {
		t.Errorf("expected registered_by %s, got %s", admin, p.RegisteredBy)
	}
	if svc.TotalPatients() != 1 {
		t.Errorf("expected 1 patient, got %d", svc.TotalPatients())
	}
}

func TestRegisterPatient_Duplicate(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	_, err := svc.RegisterPatient(admin, "p-1", testHash(2))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
	if svc.TotalPatients() != 1 {
		t.Errorf("failed registration must not bump the counter")
	}
}

func TestRegisterPatient_DuplicateAfterDeactivation(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	if _, err := svc.DeactivatePatient(admin, "p-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.RegisterPatient(admin, "p-1", testHash(1))
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("deactivated identifiers must stay registered, got %v", err)
	}
}

func TestRegisterPatient_NotAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.RegisterPatient("rando", "p-1", testHash(1))
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestRegisterPatient_InvalidInput(t *testing.T) {
	svc := newTestService()

	if _, err := svc.RegisterPatient(admin, "", testHash(1)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
	}
	if _, err := svc.RegisterPatient(admin, "p-1", Hash{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero hash, got %v", err)
	}
}

func TestDeactivatePatient(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	ev, err := svc.DeactivatePatient(admin, "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != EventPatientDeactivated {
		t.Errorf("expected patient.deactivated, got %s", ev.Type)
	}
	p, ok := svc.GetPatient("p-1")
	if !ok || p.Active {
		t.Error("expected patient inactive but still present")
	}
	if svc.TotalPatients() != 1 {
		t.Errorf("deactivation must not change the patient counter")
	}
}

func TestDeactivatePatient_Unknown(t *testing.T) {
	svc := newTestService()

	_, err := svc.DeactivatePatient(admin, "ghost")
	if !errors.Is(err, ErrUnknownPatient) {
		t.Errorf("expected ErrUnknownPatient, got %v", err)
	}
}

func TestDeactivatePatient_IdempotentStillEmits(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	if _, err := svc.DeactivatePatient(admin, "p-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := svc.Log().Len()
	if _, err := svc.DeactivatePatient(admin, "p-1"); err != nil {
		t.Fatalf("repeat deactivation should succeed: %v", err)
	}
	if svc.Log().Len() != before+1 {
		t.Error("expected repeat deactivation to emit an event")
	}
}

// -- Authorization graph --

func TestAuthorizeDoctor(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	ev, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != EventDoctorAuthorized {
		t.Errorf("expected doctor.authorized, got %s", ev.Type)
	}
	if !svc.IsAuthorizedDoctor("p-1", "dr-house") {
		t.Error("expected edge set")
	}
	if svc.IsAuthorizedDoctor("p-1", "dr-wilson") {
		t.Error("edge must be per doctor")
	}
}

func TestAuthorizeDoctor_NoGlobalRoleNeeded(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	// dr-house never receives the global doctor role; the per-patient edge
	// is an independent capability.
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab"); err != nil {
		t.Errorf("authorized principal should add records without the global role: %v", err)
	}
}

func TestAuthorizeDoctor_UnknownPatient(t *testing.T) {
	svc := newTestService()

	_, err := svc.AuthorizeDoctor(admin, "ghost", "dr-house")
	if !errors.Is(err, ErrUnknownPatient) {
		t.Errorf("expected ErrUnknownPatient, got %v", err)
	}
}

func TestAuthorizeDoctor_InactivePatient(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.DeactivatePatient(admin, "p-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house")
	if !errors.Is(err, ErrUnknownPatient) {
		t.Errorf("inactive patients accept no new authorizations, got %v", err)
	}
}

func TestRevokeDoctor(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev, err := svc.RevokeDoctor(admin, "p-1", "dr-house")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != EventDoctorRevoked {
		t.Errorf("expected doctor.revoked, got %s", ev.Type)
	}
	if svc.IsAuthorizedDoctor("p-1", "dr-house") {
		t.Error("expected edge cleared")
	}
}

func TestIsAuthorizedDoctor_UnknownPatientFalse(t *testing.T) {
	svc := newTestService()
	if svc.IsAuthorizedDoctor("ghost", "dr-house") {
		t.Error("unknown patients must read as unauthorized, not error")
	}
}

// -- Records --

func TestAddRecord(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ev, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab-result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != EventRecordAdded {
		t.Errorf("expected record.added, got %s", ev.Type)
	}
	if rec.Author != "dr-house" || rec.PatientID != "p-1" || rec.Type != "lab-result" {
		t.Errorf("unexpected record metadata: %+v", rec)
	}
	if !rec.Active {
		t.Error("expected new record active")
	}
	if !svc.VerifyRecord(testHash(7)) {
		t.Error("expected stored record to verify")
	}
	if svc.TotalRecords() != 1 {
		t.Errorf("expected 1 record, got %d", svc.TotalRecords())
	}
}

func TestAddRecord_NotAuthorized(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	_, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
	if svc.TotalRecords() != 0 {
		t.Error("failed add must not bump the counter")
	}
}

func TestAddRecord_RevokedDoctor(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RevokeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized after revocation, got %v", err)
	}
}

func TestAddRecord_UnknownPatientBeforeAuth(t *testing.T) {
	svc := newTestService()

	// Unknown patient is reported even though the caller also holds no
	// authorization edge.
	_, _, err := svc.AddRecord("dr-house", "ghost", testHash(7), "lab")
	if !errors.Is(err, ErrUnknownPatient) {
		t.Errorf("expected ErrUnknownPatient, got %v", err)
	}
}

func TestAddRecord_DuplicateHash(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	registerTestPatient(t, svc, "p-2", 2)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.AuthorizeDoctor(admin, "p-2", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Same hash rejected under the same patient and under a different one.
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab"); !errors.Is(err, ErrDuplicateRecord) {
		t.Errorf("expected ErrDuplicateRecord, got %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-2", testHash(7), "lab"); !errors.Is(err, ErrDuplicateRecord) {
		t.Errorf("expected ErrDuplicateRecord across patients, got %v", err)
	}
}

func TestGetPatientRecords_Order(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hashes := []Hash{testHash(3), testHash(4), testHash(5)}
	for _, h := range hashes {
		if _, _, err := svc.AddRecord("dr-house", "p-1", h, "note"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := svc.GetPatientRecords("p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(hashes) {
		t.Fatalf("expected %d hashes, got %d", len(hashes), len(got))
	}
	for i := range hashes {
		if got[i] != hashes[i] {
			t.Errorf("index %d: expected %s, got %s", i, hashes[i], got[i])
		}
	}
}

func TestGetPatientRecords_EmptyVsUnknown(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	got, err := svc.GetPatientRecords("p-1")
	if err != nil {
		t.Fatalf("registered patient with no records must not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}

	if _, err := svc.GetPatientRecords("ghost"); !errors.Is(err, ErrUnknownPatient) {
		t.Errorf("expected ErrUnknownPatient for unregistered id, got %v", err)
	}
}

func TestGetPatientRecords_DeactivatedKeepsHistory(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.DeactivatePatient(admin, "p-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.GetPatientRecords("p-1")
	if err != nil {
		t.Fatalf("deactivated patients still list history: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 record, got %d", len(got))
	}
	if !svc.VerifyRecord(testHash(7)) {
		t.Error("records of deactivated patients still verify")
	}
}

func TestAddRecord_DeactivatedPatientRejected(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.DeactivatePatient(admin, "p-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab")
	if !errors.Is(err, ErrUnknownPatient) {
		t.Errorf("expected ErrUnknownPatient for inactive patient, got %v", err)
	}
}

// -- Verification --

func TestVerifyRecord_UnknownFalse(t *testing.T) {
	svc := newTestService()
	if svc.VerifyRecord(testHash(99)) {
		t.Error("unknown hash must verify false, not error")
	}
}

func TestGetRecord(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, ok := svc.GetRecord(testHash(7))
	if !ok {
		t.Fatal("expected record found")
	}
	if rec.PatientID != "p-1" {
		t.Errorf("expected p-1, got %s", rec.PatientID)
	}
	if _, ok := svc.GetRecord(testHash(99)); ok {
		t.Error("expected miss for unknown hash")
	}
}

// -- Circuit breaker --

func TestPause_BlocksMutators(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(3), "lab"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Pause(admin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.Paused() {
		t.Fatal("expected paused state")
	}

	if _, err := svc.RegisterPatient(admin, "p-2", testHash(2)); !errors.Is(err, ErrSystemPaused) {
		t.Errorf("register during pause: got %v", err)
	}
	if _, err := svc.GrantRole(admin, RoleDoctor, "x"); !errors.Is(err, ErrSystemPaused) {
		t.Errorf("grant during pause: got %v", err)
	}
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-wilson"); !errors.Is(err, ErrSystemPaused) {
		t.Errorf("authorize during pause: got %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab"); !errors.Is(err, ErrSystemPaused) {
		t.Errorf("add record during pause: got %v", err)
	}

	// Reads stay available.
	if _, ok := svc.GetPatient("p-1"); !ok {
		t.Error("reads must work while paused")
	}
	if !svc.IsAuthorizedDoctor("p-1", "dr-house") {
		t.Error("authorization reads must work while paused")
	}
	if !svc.VerifyRecord(testHash(3)) {
		t.Error("record verification must work while paused")
	}
	hashes, err := svc.GetPatientRecords("p-1")
	if err != nil {
		t.Errorf("record listing must work while paused: %v", err)
	}
	if len(hashes) != 1 || hashes[0] != testHash(3) {
		t.Errorf("expected the pre-pause record, got %v", hashes)
	}
}

func TestUnpause_RestoresMutators(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Pause(admin); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Unpause(admin); err != nil {
		t.Fatalf("unpause must not be gated on the pause flag: %v", err)
	}
	if svc.Paused() {
		t.Fatal("expected unpaused")
	}
	if _, err := svc.RegisterPatient(admin, "p-1", testHash(1)); err != nil {
		t.Errorf("mutators must resume after unpause: %v", err)
	}
}

func TestPause_NotAdmin(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Pause("rando"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := svc.Unpause("rando"); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("expected ErrNotAuthorized, got %v", err)
	}
}

// -- Snapshot and event ordering --

func TestSnapshot_CountersMatchState(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	registerTestPatient(t, svc, "p-2", 2)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats := svc.Snapshot()
	if stats.TotalPatients != 2 {
		t.Errorf("expected 2 patients, got %d", stats.TotalPatients)
	}
	if stats.TotalRecords != 1 {
		t.Errorf("expected 1 record, got %d", stats.TotalRecords)
	}
	if stats.EventCount != svc.Log().Len() {
		t.Errorf("event count mismatch: %d vs %d", stats.EventCount, svc.Log().Len())
	}
	if stats.Paused {
		t.Error("expected unpaused")
	}

	recs, err := svc.GetPatientRecords("p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uint64(len(recs)) != stats.TotalRecords {
		t.Errorf("record counter diverged from index")
	}
}

func TestEventSequenceContiguous(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(7), "lab"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := svc.Log().Since(0, 0)
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, ev.Seq)
		}
		if ev.ID == "" {
			t.Errorf("event %d missing id", ev.Seq)
		}
	}
}

func TestFailedOperationsEmitNothing(t *testing.T) {
	svc := newTestService()
	registerTestPatient(t, svc, "p-1", 1)

	before := svc.Log().Len()
	svc.RegisterPatient(admin, "p-1", testHash(2))      // duplicate
	svc.RegisterPatient("rando", "p-2", testHash(2))    // not admin
	svc.AuthorizeDoctor(admin, "ghost", "dr-house")     // unknown patient
	svc.AddRecord("dr-house", "p-1", testHash(7), "")   // not authorized
	svc.GrantRole(admin, RoleSuperAdmin, "usurper")     // immutable role
	if got := svc.Log().Len(); got != before {
		t.Errorf("failed operations must not emit events, log grew by %d", got-before)
	}
}

// End-to-end: register, authorize, write, revoke, verify.
func TestRegistryLifecycle(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GrantRole(admin, RoleDoctor, "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	registerTestPatient(t, svc, "p-1", 1)
	if _, err := svc.AuthorizeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(10), "admission-note"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(11), "lab-result"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.RevokeDoctor(admin, "p-1", "dr-house"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.AddRecord("dr-house", "p-1", testHash(12), "late-note"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized after revoke, got %v", err)
	}

	// History written before revocation survives and verifies publicly.
	recs, err := svc.GetPatientRecords("p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if !svc.VerifyRecord(testHash(10)) || !svc.VerifyRecord(testHash(11)) {
		t.Error("expected both records to verify")
	}
	if svc.VerifyRecord(testHash(12)) {
		t.Error("rejected record must not verify")
	}
}
