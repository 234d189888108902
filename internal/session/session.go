// Package session tracks one in-flight conversation per phone number. All
// handler work for a phone runs under that session's lock, so two messages
// from the same participant can never interleave a stage transition.
package session

import (
	"sync"
	"time"
)

// Stage is where the conversation currently sits.
type Stage string

const (
	StageInitial      Stage = "initial"
	StageConsent      Stage = "consent"
	StageEmail        Stage = "email"
	StageBirthDate    Stage = "birth_date"
	StagePostalCode   Stage = "postal_code"
	StageAddrConfirm  Stage = "address_confirmation"
	StageStreet       Stage = "street"
	StageDistrict     Stage = "district"
	StageCity         Stage = "city"
	StageRegion       Stage = "region"
	StageHouseNumber  Stage = "house_number"
	StageComplement   Stage = "complement"
	StageComplete     Stage = "complete"
	StageDisqualified Stage = "disqualified"
)

// Collected holds the answers gathered so far. Fields fill in stage order.
type Collected struct {
	Email      string
	BirthDate  string // DD/MM/AAAA as given
	Age        int
	PostalCode string
	Street     string
	District   string
	City       string
	Region     string
	HouseNo    string
	Complement string
}

// Session is the per-phone conversation state. Callers must only touch it
// inside Manager.With.
type Session struct {
	mu sync.Mutex

	Phone          string
	Name           string
	NationalID     string
	Role           string
	ConversationID string
	Stage          Stage
	Data           Collected
	Retries        int

	CreatedAt    time.Time
	LastActivity time.Time
}

// Transition moves the session to next and resets the retry counter.
func (s *Session) Transition(next Stage) {
	s.Stage = next
	s.Retries = 0
}

// ManagerOpts configures a Manager.
type ManagerOpts struct {
	Timeout time.Duration // idle time before a session expires
}

// Manager owns the phone-to-session map.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
}

func NewManager(opts ManagerOpts) *Manager {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Minute
	}
	return &Manager{
		sessions: make(map[string]*Session),
		timeout:  opts.Timeout,
	}
}

// With runs fn with the session for phone, creating it when absent or idle
// past the timeout. fresh reports whether the session was just created. The
// session lock is held for the whole call, serializing handlers per phone
// while leaving other phones free to proceed.
func (m *Manager) With(phone string, fn func(s *Session, fresh bool)) {
	m.mu.Lock()
	s, ok := m.sessions[phone]
	if ok && m.timeout > 0 {
		s.mu.Lock()
		stale := time.Since(s.LastActivity) > m.timeout
		s.mu.Unlock()
		if stale {
			ok = false
		}
	}
	if !ok {
		now := time.Now()
		s = &Session{
			Phone:        phone,
			Stage:        StageInitial,
			CreatedAt:    now,
			LastActivity: now,
		}
		m.sessions[phone] = s
	}
	m.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivity = time.Now()
	fn(s, !ok)
}

// End drops the session for phone, if any.
func (m *Manager) End(phone string) {
	m.mu.Lock()
	delete(m.sessions, phone)
	m.mu.Unlock()
}

// ExpireSweep removes sessions idle longer than the timeout and returns how
// many were dropped. Meant to run on a schedule.
func (m *Manager) ExpireSweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for phone, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.LastActivity)
		s.mu.Unlock()
		if idle > m.timeout {
			delete(m.sessions, phone)
			n++
		}
	}
	return n
}

// Len reports how many sessions are live.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stats summarizes live sessions by stage.
func (m *Manager) Stats() map[Stage]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Stage]int)
	for _, s := range m.sessions {
		s.mu.Lock()
		out[s.Stage]++
		s.mu.Unlock()
	}
	return out
}
