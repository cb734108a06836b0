package registry

import "sync"

// In-memory store implementations. These are the authoritative state: the
// registry's execution model is a single serialized ledger, so durability
// is the event projection's concern, not the stores'. Each store is
// individually thread-safe; cross-store atomicity comes from the Service's
// writer lock.

// MemRoleStore is an in-memory RoleStore.
type MemRoleStore struct {
	mu      sync.RWMutex
	members map[Role]map[Principal]bool
}

// NewMemRoleStore creates an empty role store.
func NewMemRoleStore() *MemRoleStore {
	return &MemRoleStore{members: make(map[Role]map[Principal]bool)}
}

func (s *MemRoleStore) Grant(role Role, p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[role] == nil {
		s.members[role] = make(map[Principal]bool)
	}
	s.members[role][p] = true
}

func (s *MemRoleStore) Revoke(role Role, p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[role], p)
}

func (s *MemRoleStore) Has(role Role, p Principal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[role][p]
}

func (s *MemRoleStore) Count(role Role) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members[role])
}

// MemPatientStore is an in-memory PatientStore. It stores copies so callers
// cannot mutate directory state behind the service's back.
type MemPatientStore struct {
	mu       sync.RWMutex
	patients map[string]Patient
}

// NewMemPatientStore creates an empty patient directory.
func NewMemPatientStore() *MemPatientStore {
	return &MemPatientStore{patients: make(map[string]Patient)}
}

func (s *MemPatientStore) Put(p *Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = *p
}

func (s *MemPatientStore) Get(id string) (*Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, false
	}
	return &p, true
}

func (s *MemPatientStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patients)
}

type edgeKey struct {
	patientID string
	doctor    Principal
}

// MemAuthorizationStore is an in-memory AuthorizationStore.
type MemAuthorizationStore struct {
	mu    sync.RWMutex
	edges map[edgeKey]bool
}

// NewMemAuthorizationStore creates an empty authorization graph.
func NewMemAuthorizationStore() *MemAuthorizationStore {
	return &MemAuthorizationStore{edges: make(map[edgeKey]bool)}
}

func (s *MemAuthorizationStore) Set(patientID string, doctor Principal, authorized bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edgeKey{patientID, doctor}] = authorized
}

func (s *MemAuthorizationStore) Get(patientID string, doctor Principal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.edges[edgeKey{patientID, doctor}]
}

// MemRecordStore is an in-memory RecordStore.
type MemRecordStore struct {
	mu      sync.RWMutex
	records map[Hash]Record
	index   map[string][]Hash
}

// NewMemRecordStore creates an empty record ledger.
func NewMemRecordStore() *MemRecordStore {
	return &MemRecordStore{
		records: make(map[Hash]Record),
		index:   make(map[string][]Hash),
	}
}

func (s *MemRecordStore) Put(r *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Hash] = *r
}

func (s *MemRecordStore) Get(h Hash) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[h]
	if !ok {
		return nil, false
	}
	return &r, true
}

func (s *MemRecordStore) AppendIndex(patientID string, h Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[patientID] = append(s.index[patientID], h)
}

func (s *MemRecordStore) Index(patientID string) []Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.index[patientID]
	out := make([]Hash, len(idx))
	copy(out, idx)
	return out
}

func (s *MemRecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
