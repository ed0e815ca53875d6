// Package supervisor drives the WhatsApp connection lifecycle: it builds
// clients, reacts to their events, and schedules every reconnect, retry and
// cooldown on an injectable clock.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppbridge/internal/clock"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/credential"
	"github.com/matheus3301/wppbridge/internal/reaper"
	"github.com/matheus3301/wppbridge/internal/status"
	cachesync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
)

// ErrNoClient is returned by Logout when no client is connected.
var ErrNoClient = errors.New("no whatsapp client")

// Reaper kills leftover client processes and temp files.
type Reaper interface {
	Reap(ctx context.Context) reaper.Result
}

// SessionStore is the on-disk pairing state the client is bound to.
type SessionStore interface {
	Dir() string
	Clear() error
}

// CredentialStore holds the API token pair tied to the session.
type CredentialStore interface {
	Issue() (credential.Credentials, error)
	Clear() error
}

// Syncer refreshes and resets the contact/chat cache.
type Syncer interface {
	SyncAll(ctx context.Context) (cachesync.Result, error)
	Reset(ctx context.Context)
}

// Deps groups the collaborators of a Supervisor.
type Deps struct {
	Machine     *status.Machine
	Factory     wa.Factory
	Sessions    SessionStore
	Credentials CredentialStore
	Reaper      Reaper
	Syncer      Syncer
	Clock       clock.Clock
	Logger      *zap.Logger
}

// Supervisor owns the client. Handler bodies and timer callbacks are
// serialized by mu; blocking client calls run outside it.
type Supervisor struct {
	machine  *status.Machine
	factory  wa.Factory
	sessions SessionStore
	creds    CredentialStore
	reaper   Reaper
	syncer   Syncer
	clock    clock.Clock
	timings  config.TimingsConfig
	device   string
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	timers       map[uint64]*clock.Timer
	nextTimer    uint64
	initTimer    uint64
	gen          uint64
	client       wa.Client
	initializing bool
	backoff      time.Duration
	closed       bool
}

// New creates a supervisor. Nothing happens until Start.
func New(deps Deps, timings config.TimingsConfig, deviceName string) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		machine:  deps.Machine,
		factory:  deps.Factory,
		sessions: deps.Sessions,
		creds:    deps.Credentials,
		reaper:   deps.Reaper,
		syncer:   deps.Syncer,
		clock:    deps.Clock,
		timings:  timings,
		device:   deviceName,
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[uint64]*clock.Timer),
	}
}

// Start begins a connection attempt. It is a no-op while one is already
// in progress or after Shutdown.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.initializing {
		s.mu.Unlock()
		s.logger.Debug("initialization already in progress")
		return
	}
	// A new attempt supersedes every pending retry, restart and sync.
	s.cancelAllTimers()
	s.initializing = true
	s.gen++
	gen := s.gen
	s.transition(status.Connecting)
	s.mu.Unlock()

	s.logger.Info("starting whatsapp client", zap.Uint64("generation", gen))
	s.reaper.Reap(s.ctx)

	s.mu.Lock()
	if gen == s.gen && !s.closed {
		s.schedule(s.timings.Settle, func() { s.launch(gen) })
	}
	s.mu.Unlock()
}

// launch replaces the current client with a fresh one and connects it.
func (s *Supervisor) launch(gen uint64) {
	s.mu.Lock()
	if s.stale(gen) {
		s.mu.Unlock()
		return
	}
	old := s.detachLocked()
	s.mu.Unlock()

	s.destroy(old)

	client, err := s.factory(s.ctx, wa.Options{
		SessionDir: s.sessions.Dir(),
		DeviceName: s.device,
	})
	if err != nil {
		s.fail(gen, fmt.Errorf("create client: %w", err))
		return
	}

	s.mu.Lock()
	if s.stale(gen) {
		s.mu.Unlock()
		s.destroy(client)
		return
	}
	s.client = client
	s.machine.SetClient(client)
	client.SetEventHandler(func(evt wa.Event) { s.handleEvent(gen, evt) })
	s.initTimer = s.schedule(s.timings.InitTimeout, func() { s.onInitTimeout(gen) })
	s.mu.Unlock()

	if err := client.Connect(s.ctx); err != nil {
		s.fail(gen, fmt.Errorf("connect: %w", err))
	}
}

// fail puts the connection in ERROR and retries after the backoff delay.
func (s *Supervisor) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.stale(gen) {
		s.mu.Unlock()
		return
	}
	// Events still in flight from the failed client are dropped.
	s.gen++
	s.cancelTimer(s.initTimer)
	s.initializing = false
	s.machine.SetFlags(false, false)
	s.transition(status.Error)
	delay := s.nextBackoff()
	s.schedule(delay, s.Start)
	s.mu.Unlock()

	s.logger.Error("whatsapp client failed", zap.Error(err), zap.Duration("retry_in", delay))
	s.reaper.Reap(s.ctx)
}

func (s *Supervisor) onInitTimeout(gen uint64) {
	s.mu.Lock()
	if s.stale(gen) {
		s.mu.Unlock()
		return
	}
	s.initTimer = 0
	s.initializing = false
	s.mu.Unlock()

	s.logger.Warn("initialization timed out, restarting", zap.Duration("timeout", s.timings.InitTimeout))
	s.Start()
}

func (s *Supervisor) handleEvent(gen uint64, evt wa.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(gen) {
		s.logger.Debug("dropping event from stale client", zap.String("kind", string(evt.Kind)))
		return
	}

	switch evt.Kind {
	case wa.EventQR:
		s.onQR(evt.QRCode)
	case wa.EventAuthenticated:
		s.onAuthenticated()
	case wa.EventReady:
		s.onReady(gen)
	case wa.EventAuthFailure:
		s.onAuthFailure(gen, evt.Reason)
	case wa.EventDisconnected:
		s.onDisconnected(gen, evt.Reason)
	case wa.EventChangeState:
		s.logger.Info("connection state changed", zap.String("state", evt.State))
	case wa.EventError:
		s.logger.Error("whatsapp client error", zap.Error(evt.Err))
	default:
		s.logger.Debug("unhandled client event", zap.String("kind", string(evt.Kind)))
	}
}

func (s *Supervisor) onQR(code string) {
	if !s.transition(status.QRReady) {
		return
	}
	s.machine.SetQR(code)
	s.cancelTimer(s.initTimer)
	s.logger.Info("qr code received, waiting for scan")
}

func (s *Supervisor) onAuthenticated() {
	if !s.transition(status.Authenticated) {
		return
	}
	s.machine.SetFlags(true, false)
	s.machine.SetQR("")
	s.cancelTimer(s.initTimer)
	if _, err := s.creds.Issue(); err != nil {
		s.logger.Error("failed to issue credentials", zap.Error(err))
	}
	s.logger.Info("authenticated")
}

func (s *Supervisor) onReady(gen uint64) {
	if !s.transition(status.Ready) {
		return
	}
	s.machine.SetFlags(true, true)
	s.machine.SetQR("")
	s.cancelTimer(s.initTimer)
	s.initializing = false
	s.backoff = 0
	s.logger.Info("whatsapp ready")
	s.schedule(s.timings.ReadySyncDelay, func() { s.initialSync(gen) })
}

func (s *Supervisor) initialSync(gen uint64) {
	s.mu.Lock()
	live := !s.stale(gen) && s.machine.Current() == status.Ready
	s.mu.Unlock()
	if !live {
		return
	}

	res, err := s.syncer.SyncAll(s.ctx)
	if err != nil {
		s.logger.Warn("initial sync failed", zap.Error(err))
		return
	}
	s.logger.Info("initial sync complete", zap.Int("contacts", res.Contacts), zap.Int("chats", res.Chats))
}

func (s *Supervisor) onAuthFailure(gen uint64, reason string) {
	if !s.transition(status.AuthFailed) {
		return
	}
	s.machine.SetFlags(false, false)
	s.machine.SetQR("")
	s.cancelTimer(s.initTimer)
	s.initializing = false
	if err := s.creds.Clear(); err != nil {
		s.logger.Error("failed to clear credentials", zap.Error(err))
	}
	s.logger.Warn("authentication failed", zap.String("reason", reason),
		zap.Duration("cooldown", s.timings.AuthFailureCooldown))
	s.schedule(s.timings.AuthFailureCooldown, func() { s.recoverAuth(gen) })
}

// recoverAuth drops the rejected pairing and starts over with a fresh QR.
func (s *Supervisor) recoverAuth(gen uint64) {
	s.mu.Lock()
	if s.stale(gen) {
		s.mu.Unlock()
		return
	}
	s.gen++
	client := s.detachLocked()
	s.mu.Unlock()

	s.destroy(client)
	if err := s.sessions.Clear(); err != nil {
		s.logger.Error("failed to clear session", zap.Error(err))
	}
	s.reaper.Reap(s.ctx)

	s.mu.Lock()
	if !s.closed {
		s.schedule(s.timings.RestartDelay, s.Start)
	}
	s.mu.Unlock()
}

func (s *Supervisor) onDisconnected(gen uint64, reason string) {
	if !s.transition(status.Disconnected) {
		return
	}
	s.machine.SetFlags(false, false)
	s.machine.SetQR("")
	s.cancelTimer(s.initTimer)
	s.initializing = false

	if reason == wa.ReasonLogout {
		s.logger.Info("logged out, not reconnecting")
		return
	}
	s.logger.Warn("disconnected", zap.String("reason", reason),
		zap.Duration("reconnect_in", s.timings.DisconnectDelay+s.timings.ReconnectDelay))
	s.schedule(s.timings.DisconnectDelay, func() { s.reconnect(gen) })
}

func (s *Supervisor) reconnect(gen uint64) {
	s.mu.Lock()
	if s.stale(gen) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.reaper.Reap(s.ctx)

	s.mu.Lock()
	if !s.stale(gen) {
		s.schedule(s.timings.ReconnectDelay, s.Start)
	}
	s.mu.Unlock()
}

// Reset wipes the session, the credentials and the cache, then schedules
// a fresh Start. It is used to pair a different account.
func (s *Supervisor) Reset(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancelAllTimers()
	s.gen++
	s.initializing = false
	s.backoff = 0
	client := s.detachLocked()
	s.mu.Unlock()

	s.logger.Info("resetting session")
	s.destroy(client)
	if err := s.sessions.Clear(); err != nil {
		s.logger.Error("failed to clear session", zap.Error(err))
	}
	if err := s.creds.Clear(); err != nil {
		s.logger.Error("failed to clear credentials", zap.Error(err))
	}
	s.reaper.Reap(ctx)
	s.syncer.Reset(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.machine.SetFlags(false, false)
	s.machine.SetQR("")
	s.transition(status.Disconnected)
	s.schedule(s.timings.ResetDelay, s.Start)
}

// Logout unlinks the device. The client reports disconnected(LOGOUT),
// after which no reconnect is scheduled until Start is called.
func (s *Supervisor) Logout(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNoClient
	}

	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	// The unlinked device store is useless; drop it so status stops
	// reporting a session.
	if err := s.sessions.Clear(); err != nil {
		s.logger.Error("failed to clear session", zap.Error(err))
	}
	if err := s.creds.Clear(); err != nil {
		s.logger.Error("failed to clear credentials", zap.Error(err))
	}
	s.logger.Info("logged out")
	return nil
}

// Shutdown cancels every pending timer, destroys the client and reaps,
// giving up when ctx is done. The supervisor cannot be restarted.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelAllTimers()
	s.gen++
	client := s.detachLocked()
	s.machine.SetFlags(false, false)
	s.mu.Unlock()
	defer s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if client != nil {
			if err := client.Destroy(ctx); err != nil {
				s.logger.Warn("failed to destroy client", zap.Error(err))
			}
		}
		s.reaper.Reap(ctx)
	}()

	select {
	case <-done:
		s.logger.Info("supervisor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown supervisor: %w", ctx.Err())
	}
}

// PendingTimers reports how many callbacks are scheduled.
func (s *Supervisor) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// stale reports whether work started under gen has been superseded. Caller
// holds mu.
func (s *Supervisor) stale(gen uint64) bool {
	return s.closed || gen != s.gen
}

// transition moves the machine to state and logs a rejected move. Caller
// holds mu.
func (s *Supervisor) transition(to status.State) bool {
	if err := s.machine.Transition(to); err != nil {
		s.logger.Warn("rejected state transition", zap.Error(err))
		return false
	}
	return true
}

// detachLocked forgets the current client and returns it for destruction.
func (s *Supervisor) detachLocked() wa.Client {
	client := s.client
	s.client = nil
	s.machine.SetClient(nil)
	return client
}

func (s *Supervisor) destroy(client wa.Client) {
	if client == nil {
		return
	}
	if err := client.Destroy(s.ctx); err != nil {
		s.logger.Warn("failed to destroy client", zap.Error(err))
	}
}

// nextBackoff returns the next error-retry delay. Caller holds mu.
func (s *Supervisor) nextBackoff() time.Duration {
	switch {
	case s.backoff == 0:
		s.backoff = s.timings.ErrorRetryBase
	case s.backoff < s.timings.ErrorRetryMax:
		s.backoff = min(s.backoff*2, s.timings.ErrorRetryMax)
	}
	return s.backoff
}

// schedule runs fn after d unless the timer is cancelled first. fn runs
// without mu held. Caller holds mu.
func (s *Supervisor) schedule(d time.Duration, fn func()) uint64 {
	s.nextTimer++
	id := s.nextTimer
	s.timers[id] = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		_, pending := s.timers[id]
		delete(s.timers, id)
		s.mu.Unlock()
		if pending {
			fn()
		}
	})
	return id
}

// cancelTimer stops a pending callback. Caller holds mu.
func (s *Supervisor) cancelTimer(id uint64) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	if id == s.initTimer {
		s.initTimer = 0
	}
}

// cancelAllTimers stops every pending callback. Caller holds mu.
func (s *Supervisor) cancelAllTimers() {
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.initTimer = 0
}
