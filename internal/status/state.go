// Package status holds the single connection context of the daemon: the
// lifecycle state, the pairing QR code, the ready/authenticated flags and
// the live client handle.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/wa"
)

// State is the connection lifecycle state.
type State string

const (
	Disconnected  State = "DISCONNECTED"
	Connecting    State = "CONNECTING"
	QRReady       State = "QR_READY"
	Authenticated State = "AUTHENTICATED"
	Ready         State = "READY"
	AuthFailed    State = "AUTH_FAILED"
	Error         State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected:  {Connecting},
	Connecting:    {Connecting, QRReady, Authenticated, Ready, AuthFailed, Disconnected, Error},
	QRReady:       {QRReady, Connecting, Authenticated, AuthFailed, Disconnected, Error},
	Authenticated: {Connecting, Ready, AuthFailed, Disconnected, Error},
	Ready:         {Connecting, AuthFailed, Disconnected, Error},
	AuthFailed:    {Connecting, Disconnected},
	Error:         {Connecting, Disconnected},
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State `json:"from"`
	To   State `json:"to"`
}

// Snapshot is a consistent copy of the connection context.
type Snapshot struct {
	State         State
	QR            string
	Ready         bool
	Authenticated bool
	Since         time.Time
}

// Machine is the connection context. The supervisor is its only writer;
// everyone else reads.
type Machine struct {
	mu            sync.RWMutex
	current       State
	since         time.Time
	qr            string
	ready         bool
	authenticated bool
	client        wa.Client
	bus           *bus.Bus
}

// NewMachine creates a machine in DISCONNECTED.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state. A move to the current state that the
// table does not list is a silent no-op; any other unlisted move is
// rejected and leaves the machine unchanged.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.current
	if !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		if from == to {
			return nil
		}
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.since = time.Now()
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// SetQR stores the latest pairing code; an empty code clears it.
func (m *Machine) SetQR(code string) {
	m.mu.Lock()
	m.qr = code
	m.mu.Unlock()
	if code != "" && m.bus != nil {
		m.bus.Emit(bus.KindQR, code)
	}
}

// QR returns the current pairing code, if any.
func (m *Machine) QR() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qr
}

// SetFlags records the authenticated and ready flags.
func (m *Machine) SetFlags(authenticated, ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authenticated = authenticated
	m.ready = ready
}

// IsAuthenticated reports the authenticated flag.
func (m *Machine) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticated
}

// SetClient installs the live client handle; nil detaches it.
func (m *Machine) SetClient(c wa.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = c
}

// Client returns the live client handle regardless of state.
func (m *Machine) Client() wa.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// ReadyClient returns the client only while the connection is READY.
func (m *Machine) ReadyClient() (wa.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current != Ready || !m.ready || m.client == nil {
		return nil, false
	}
	return m.client, true
}

// Snapshot returns a consistent copy of the context.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		State:         m.current,
		QR:            m.qr,
		Ready:         m.ready,
		Authenticated: m.authenticated,
		Since:         m.since,
	}
}
