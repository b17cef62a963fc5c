/*
 * Vaultkeeper
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package session provides the lifecycle-aware session manager: it owns the
// current session token, schedules pre-expiry renewals with jitter,
// re-authenticates when a lease cannot be extended, and revokes the token
// on shutdown.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gravitational/vaultkeeper/lib/authstep"
	"github.com/gravitational/vaultkeeper/lib/events"
	"github.com/gravitational/vaultkeeper/lib/schedule"
	"github.com/gravitational/vaultkeeper/lib/token"
	"github.com/gravitational/vaultkeeper/lib/transport"
)

// Authenticator produces a session token, either directly or by driving a
// login step graph.
type Authenticator interface {
	// Name identifies the method for logs and metrics.
	Name() string
	// Login authenticates against the service. A bare [token.SessionToken]
	// return makes the manager learn the lease metadata through a
	// self-lookup.
	Login(ctx context.Context, rt transport.RoundTripper) (token.Token, error)
}

// LeaseStrategy controls what happens to the cached token when a renewal
// fails.
type LeaseStrategy int

const (
	// DropOnError discards the token on renewal failure; the next
	// SessionToken call re-authenticates.
	DropOnError LeaseStrategy = iota
	// RetainOnError keeps the token on renewal failure until it actually
	// expires.
	RetainOnError
)

// defaultThreshold is the renewal lead time before lease expiry.
const defaultThreshold = 5 * time.Second

// Config configures a session Manager.
type Config struct {
	// Transport executes requests against the secrets service. Required.
	Transport transport.RoundTripper
	// Auth is the authentication strategy. Required.
	Auth Authenticator
	// Bus receives lifecycle events. Defaults to a bus with no listeners.
	Bus *events.Bus[Event]
	// Scheduler runs the renewal task. Defaults to a scheduler on Clock.
	Scheduler *schedule.Scheduler
	// Clock provides the current time. Defaults to the real clock.
	Clock clockwork.Clock
	// Rand draws renewal jitter. Defaults to an auto-seeded source.
	Rand schedule.Rand
	// Threshold is the renewal lead time before lease expiry. Defaults to
	// five seconds.
	Threshold time.Duration
	// LeaseStrategy controls renewal-failure behavior.
	LeaseStrategy LeaseStrategy
	// Logger to which warnings are written.
	Logger *slog.Logger
	// Registerer receives the manager's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// CheckAndSetDefaults checks the configuration and sets default values.
func (cfg *Config) CheckAndSetDefaults() error {
	switch {
	case cfg.Transport == nil:
		return trace.BadParameter("Transport is required")
	case cfg.Auth == nil:
		return trace.BadParameter("Auth is required")
	case cfg.Threshold < 0:
		return trace.BadParameter("Threshold must not be negative")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = schedule.NewRand()
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus[Event](cfg.Logger)
	}
	if cfg.Scheduler == nil {
		s, err := schedule.NewScheduler(schedule.Config{Clock: cfg.Clock})
		if err != nil {
			return trace.Wrap(err)
		}
		cfg.Scheduler = s
	}
	return nil
}

type state int

const (
	stateInitial state = iota
	stateStarted
	stateDestroyed
)

func (s state) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateStarted:
		return "started"
	default:
		return "destroyed"
	}
}

type entry struct {
	tok token.Token
}

// Manager provides exactly one valid session token to callers,
// transparently renewing or re-authenticating. It is safe for concurrent
// use.
type Manager struct {
	cfg     Config
	metrics *managerMetrics

	// mu serializes login, renewal, and state transitions. Token readers
	// go through the atomic pointer and never take it.
	mu      sync.Mutex
	state   state
	current atomic.Pointer[entry]
	renewal atomic.Pointer[schedule.Handle]
}

// NewManager creates a session manager. No request is made until the first
// SessionToken call.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Manager{cfg: cfg, metrics: newManagerMetrics(cfg.Registerer)}, nil
}

// Bus returns the bus carrying the manager's lifecycle events.
func (m *Manager) Bus() *events.Bus[Event] { return m.cfg.Bus }

// SessionToken returns the current valid session token, authenticating
// first when none is cached. Concurrent callers during the first login
// block until it completes.
func (m *Manager) SessionToken(ctx context.Context) (token.Token, error) {
	if e := m.current.Load(); e != nil {
		return e.tok, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == stateDestroyed {
		return nil, trace.Wrap(&StateError{Op: "obtain a session token", State: m.state.String()})
	}
	if e := m.current.Load(); e != nil {
		return e.tok, nil
	}
	m.state = stateStarted
	tok, err := m.login(ctx)
	return tok, trace.Wrap(err)
}

// login authenticates, self-looks-up bare tokens, installs the result, and
// schedules its renewal. m.mu must be held.
func (m *Manager) login(ctx context.Context) (token.Token, error) {
	m.cfg.Bus.Publish(Event{Kind: EventBeforeLogin})

	tok, err := m.cfg.Auth.Login(ctx, m.cfg.Transport)
	if err != nil {
		m.metrics.loginFailures.Inc()
		m.cfg.Bus.PublishError(&AuthError{Kind: ErrorLoginFailed, Err: err})
		return nil, trace.Wrap(err)
	}

	if _, ok := tok.(token.LoginToken); !ok {
		looked, err := m.selfLookup(ctx, tok.Value())
		if err != nil {
			// Non-fatal: the raw token is retained.
			m.cfg.Logger.WarnContext(ctx, "Token self-lookup failed, keeping the raw token",
				"method", m.cfg.Auth.Name(), "error", err)
			m.cfg.Bus.PublishError(&AuthError{Kind: ErrorSelfLookupFailed, Err: err})
		} else {
			tok = looked
		}
	}

	m.current.Store(&entry{tok: tok})
	m.metrics.logins.Inc()
	m.cfg.Bus.Publish(Event{Kind: EventAfterLogin, Accessor: accessorOf(tok)})
	m.cfg.Logger.InfoContext(ctx, "Session established", "method", m.cfg.Auth.Name())
	m.scheduleRenewal(tok)
	return tok, nil
}

// selfLookup learns the lease metadata of a bare token.
func (m *Manager) selfLookup(ctx context.Context, value string) (token.LoginToken, error) {
	req := transport.Request{Method: "GET", Path: "auth/token/lookup-self"}.WithToken(value)
	resp, err := m.cfg.Transport.RoundTrip(ctx, req)
	if err != nil {
		return token.LoginToken{}, trace.Wrap(err, "token self-lookup")
	}
	if err := resp.Err("GET", req.Path); err != nil {
		return token.LoginToken{}, trace.Wrap(err)
	}
	secret, err := resp.Secret()
	if err != nil {
		return token.LoginToken{}, trace.Wrap(err)
	}
	return tokenFromLookup(value, secret)
}

// tokenFromLookup builds a login token from a lookup-self data block.
func tokenFromLookup(value string, secret *transport.Secret) (token.LoginToken, error) {
	if secret.Data == nil {
		return token.LoginToken{}, trace.BadParameter("lookup-self response has no data block")
	}
	b := token.NewBuilder(value)
	if ttl, ok := secret.Data["ttl"].(float64); ok {
		b.LeaseDuration(time.Duration(ttl) * time.Second)
	}
	if renewable, ok := secret.Data["renewable"].(bool); ok {
		b.Renewable(renewable)
	}
	if typ, ok := secret.Data["type"].(string); ok {
		b.Type(token.Type(typ))
	}
	if accessor, ok := secret.Data["accessor"].(string); ok {
		b.Accessor(accessor)
	}
	tok, err := b.Build()
	return tok, trace.Wrap(err)
}

// scheduleRenewal installs the one-shot renewal task for a renewable leased
// token, replacing any previously scheduled one.
func (m *Manager) scheduleRenewal(tok token.Token) {
	lt, ok := tok.(token.LoginToken)
	if !ok || !lt.IsRenewable() || lt.IsBatchToken() || lt.LeaseDuration() <= 0 {
		return
	}
	delay := schedule.RenewalDelay(lt.LeaseDuration(), m.cfg.Threshold, m.cfg.Rand)
	h := m.cfg.Scheduler.Schedule(func() {
		m.RenewToken(context.Background())
	}, schedule.OneShotDelay(delay))
	if old := m.renewal.Swap(h); old != nil {
		old.Cancel()
	}
}

// RenewToken attempts to extend the current lease. It returns true when the
// lease was extended and another renewal is scheduled; renewals that were
// skipped, failed, or answered with a lease too short to keep return false.
// Failures are published as error events and never propagate.
func (m *Manager) RenewToken(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateStarted {
		return false
	}
	e := m.current.Load()
	if e == nil {
		return false
	}
	lt, ok := e.tok.(token.LoginToken)
	if !ok || !lt.IsRenewable() || lt.IsBatchToken() {
		// Batch tokens are not renewable; bare tokens have no known lease.
		return false
	}

	m.cfg.Bus.Publish(Event{Kind: EventBeforeLoginTokenRenewed, Accessor: lt.Accessor()})

	renewed, err := m.renewSelf(ctx, lt)
	if err != nil {
		m.metrics.renewalFailures.Inc()
		m.cfg.Bus.PublishError(&AuthError{Kind: ErrorTokenRenewalFailed, Err: err})
		m.cfg.Logger.WarnContext(ctx, "Token renewal failed", "error", err)
		if m.cfg.LeaseStrategy == DropOnError {
			m.current.Store(nil)
		}
		return false
	}

	// A renewal that cannot outlive two thresholds is as good as expired:
	// re-authenticate instead of racing the lease.
	if renewed.LeaseDuration() < 2*m.cfg.Threshold {
		m.cfg.Bus.Publish(Event{Kind: EventLoginTokenExpired, Accessor: renewed.Accessor()})
		if _, err := m.login(ctx); err != nil {
			m.cfg.Logger.WarnContext(ctx, "Re-login after lease expiry failed", "error", err)
			if m.cfg.LeaseStrategy == DropOnError {
				m.current.Store(nil)
			}
		}
		return false
	}

	m.current.Store(&entry{tok: renewed})
	m.metrics.renewals.Inc()
	m.scheduleRenewal(renewed)
	m.cfg.Bus.Publish(Event{Kind: EventAfterLoginTokenRenewed, Accessor: renewed.Accessor()})
	return true
}

// renewSelf posts the renewal and extracts the renewed token. The returned
// token replaces the current one even when the server rotated its value.
func (m *Manager) renewSelf(ctx context.Context, lt token.LoginToken) (token.LoginToken, error) {
	req := transport.Request{Method: "POST", Path: "auth/token/renew-self"}.WithToken(lt.Value())
	resp, err := m.cfg.Transport.RoundTrip(ctx, req)
	if err != nil {
		return token.LoginToken{}, &TokenRenewalError{Err: err}
	}
	if err := resp.Err("POST", req.Path); err != nil {
		return token.LoginToken{}, &TokenRenewalError{StatusCode: resp.StatusCode, Err: err}
	}
	secret, err := resp.Secret()
	if err != nil {
		return token.LoginToken{}, &TokenRenewalError{StatusCode: resp.StatusCode, Err: err}
	}
	renewed, err := authstep.TokenFromAuth(secret.Auth)
	if err != nil {
		return token.LoginToken{}, &TokenRenewalError{StatusCode: resp.StatusCode, Err: err}
	}
	return renewed, nil
}

// Destroy transitions the manager to its terminal state: the scheduled
// renewal is cancelled, the current token is revoked when it is a service
// login token, and the cache is cleared. Destroy is idempotent; revocation
// failures are published, never returned.
func (m *Manager) Destroy(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == stateDestroyed {
		return
	}
	m.state = stateDestroyed

	if h := m.renewal.Swap(nil); h != nil {
		h.Cancel()
	}
	e := m.current.Swap(nil)
	if e == nil {
		return
	}
	lt, ok := e.tok.(token.LoginToken)
	if !ok || !lt.IsServiceToken() {
		// Bare tokens were not issued to us; batch tokens cannot be
		// revoked.
		return
	}

	m.cfg.Bus.Publish(Event{Kind: EventBeforeLoginTokenRevocation, Accessor: lt.Accessor()})
	if err := m.revokeSelf(ctx, lt); err != nil {
		m.metrics.revocationFailures.Inc()
		m.cfg.Bus.PublishError(&AuthError{Kind: ErrorLoginTokenRevocationFailed, Err: err})
		m.cfg.Logger.WarnContext(ctx, "Token revocation failed", "error", err)
		return
	}
	m.metrics.revocations.Inc()
	m.cfg.Bus.Publish(Event{Kind: EventAfterLoginTokenRevocation, Accessor: lt.Accessor()})
}

func (m *Manager) revokeSelf(ctx context.Context, lt token.LoginToken) error {
	req := transport.Request{Method: "POST", Path: "auth/token/revoke-self"}.WithToken(lt.Value())
	resp, err := m.cfg.Transport.RoundTrip(ctx, req)
	if err != nil {
		return trace.Wrap(err, "token revocation")
	}
	return trace.Wrap(resp.Err("POST", req.Path))
}

func accessorOf(tok token.Token) string {
	if lt, ok := tok.(token.LoginToken); ok {
		return lt.Accessor()
	}
	return ""
}
