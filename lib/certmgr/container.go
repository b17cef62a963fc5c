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

package certmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gravitational/vaultkeeper/lib/events"
	"github.com/gravitational/vaultkeeper/lib/schedule"
)

// defaultExpiryThreshold is the lead time before notAfter at which a
// certificate is considered due for rotation.
const defaultExpiryThreshold = 60 * time.Second

// Config configures a certificate Container.
type Config struct {
	// Authority obtains certificates. Required.
	Authority CertificateAuthority
	// Bus receives lifecycle events. Defaults to a bus with no listeners.
	Bus *events.Bus[Event]
	// Scheduler runs the rotation tasks. Defaults to a scheduler on Clock.
	Scheduler *schedule.Scheduler
	// Clock provides the current time. Defaults to the real clock.
	Clock clockwork.Clock
	// Rand draws rotation jitter. Defaults to an auto-seeded source.
	Rand schedule.Rand
	// ExpiryThreshold is the rotation lead time before certificate expiry.
	// Defaults to sixty seconds; must not be negative.
	ExpiryThreshold time.Duration
	// Logger to which warnings are written.
	Logger *slog.Logger
	// Registerer receives the container's metrics. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// CheckAndSetDefaults checks the configuration and sets default values.
func (cfg *Config) CheckAndSetDefaults() error {
	switch {
	case cfg.Authority == nil:
		return trace.BadParameter("Authority is required")
	case cfg.ExpiryThreshold < 0:
		return trace.BadParameter("ExpiryThreshold must not be negative")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Rand == nil {
		cfg.Rand = schedule.NewRand()
	}
	if cfg.ExpiryThreshold == 0 {
		cfg.ExpiryThreshold = defaultExpiryThreshold
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

// holder pins one obtained certificate. Rotation tasks capture the holder
// they were scheduled for, so a task firing after its holder was replaced
// detects it and does nothing.
type holder struct {
	cert *Certificate
}

type registration struct {
	req         RequestedCertificate
	unsubscribe []func()

	holder   *holder
	rotation *schedule.Handle
	// obtained distinguishes the first fetch of a run from rotations.
	obtained bool
}

// Container keeps a set of registered certificates current. Certificates
// are obtained on start, rotated ahead of their expiry, and dropped on
// destroy. It is safe for concurrent use.
type Container struct {
	cfg       Config
	metrics   *containerMetrics
	mu        sync.Mutex
	state     state
	threshold time.Duration
	regs      map[string]*registration
}

// NewContainer creates a certificate container. Nothing is obtained until
// Start.
func NewContainer(cfg Config) (*Container, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Container{
		cfg:       cfg,
		metrics:   newContainerMetrics(cfg.Registerer),
		threshold: cfg.ExpiryThreshold,
		regs:      make(map[string]*registration),
	}, nil
}

// Bus returns the bus carrying the container's lifecycle events.
func (c *Container) Bus() *events.Bus[Event] { return c.cfg.Bus }

// SetExpiryThreshold changes the rotation lead time. It applies to
// rotations scheduled after the call.
func (c *Container) SetExpiryThreshold(d time.Duration) error {
	if d < 0 {
		return trace.BadParameter("expiry threshold must not be negative")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = d
	return nil
}

// Register adds a certificate to the managed set. On a running container
// the certificate is obtained and its rotation scheduled before Register
// returns. Registering an already-present name again is a no-op.
func (c *Container) Register(ctx context.Context, req RequestedCertificate) error {
	return c.RegisterWithListener(ctx, req, nil)
}

// RegisterWithListener registers the certificate and subscribes the
// listener to events whose source is this registration. The listener is
// dropped on Unregister or Destroy.
func (c *Container) RegisterWithListener(ctx context.Context, req RequestedCertificate, l events.Listener[Event]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDestroyed {
		return trace.BadParameter("certificate container is destroyed")
	}
	reg, present := c.regs[req.name]
	if !present {
		reg = &registration{req: req}
		c.regs[req.name] = reg
		c.metrics.managed.Inc()
	}
	if l != nil {
		name := req.name
		reg.unsubscribe = append(reg.unsubscribe, c.cfg.Bus.Subscribe(func(e Event) {
			if e.Source == name {
				l(e)
			}
		}))
	}
	if !present && c.state == stateStarted {
		c.obtainLocked(ctx, reg)
	}
	return nil
}

// Unregister removes the certificate: its scheduled rotation is cancelled
// and its listeners are dropped, without emitting an event. It reports
// whether the name was registered.
func (c *Container) Unregister(req RequestedCertificate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.regs[req.name]
	if !ok {
		return false
	}
	reg.rotation.Cancel()
	for _, unsub := range reg.unsubscribe {
		unsub()
	}
	delete(c.regs, req.name)
	c.metrics.managed.Dec()
	return true
}

// Rotate forces rotation of a managed certificate, firing its renewal
// immediately instead of at the scheduled instant. Issuance failures are
// published as events, not returned.
func (c *Container) Rotate(ctx context.Context, req RequestedCertificate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateStarted {
		return trace.BadParameter("certificate container is not started")
	}
	reg, ok := c.regs[req.name]
	if !ok {
		return trace.NotFound("certificate %q is not registered", req.name)
	}
	reg.rotation.Cancel()
	c.obtainLocked(ctx, reg)
	return nil
}

// Start obtains every registered certificate and schedules its rotation.
// Starting after a Stop re-issues the certificates and re-emits their
// obtained events. Per-certificate failures are published as events; Start
// fails only on lifecycle misuse.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateDestroyed:
		return trace.BadParameter("certificate container is destroyed")
	case stateStarted:
		return nil
	}
	c.state = stateStarted
	for _, reg := range c.regs {
		c.obtainLocked(ctx, reg)
	}
	return nil
}

// Stop cancels all rotations and drops the obtained certificates, keeping
// registrations and listeners in place for a later Start.
func (c *Container) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateStarted {
		return
	}
	c.state = stateInitial
	for _, reg := range c.regs {
		reg.rotation.Cancel()
		reg.rotation = nil
		reg.holder = nil
		reg.obtained = false
	}
}

// Destroy cancels all rotations, drops all registrations and listeners,
// and moves the container to its terminal state. It is idempotent.
func (c *Container) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDestroyed {
		return
	}
	c.state = stateDestroyed
	for _, reg := range c.regs {
		reg.rotation.Cancel()
		for _, unsub := range reg.unsubscribe {
			unsub()
		}
	}
	clear(c.regs)
	c.metrics.managed.Set(0)
}

// Certificate returns the current certificate for a registered name, if
// one has been obtained.
func (c *Container) Certificate(name string) (*Certificate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.regs[name]
	if !ok || reg.holder == nil {
		return nil, false
	}
	return reg.holder.cert, true
}

// obtainLocked fetches the registration's certificate, installs it, and
// schedules the next rotation. Failures retain the current holder, emit
// events, and leave no rotation scheduled; operators retry via Rotate.
// c.mu must be held.
func (c *Container) obtainLocked(ctx context.Context, reg *registration) {
	cert, err := reg.req.obtain(ctx, c.cfg.Authority)
	if err != nil {
		if reg.obtained {
			c.metrics.rotationFailures.Inc()
		} else {
			c.metrics.issueFailures.Inc()
		}
		c.cfg.Logger.WarnContext(ctx, "Certificate issuance failed",
			"certificate", reg.req.name, "error", err)
		c.cfg.Bus.Publish(Event{Kind: EventCertificateError, Source: reg.req.name, Err: err})
		c.cfg.Bus.PublishError(&CertificateError{Name: reg.req.name, Err: err})
		return
	}

	outgoing := reg.holder
	reg.rotation.Cancel()
	reg.holder = &holder{cert: cert}
	c.scheduleRotationLocked(reg)

	kind := EventCertificateObtained
	switch {
	case reg.req.bundle && reg.obtained:
		kind = EventCertificateBundleRotated
	case reg.req.bundle:
		kind = EventCertificateBundleIssued
	case reg.obtained:
		kind = EventCertificateRotated
	}
	if reg.obtained {
		c.metrics.rotations.Inc()
	} else {
		c.metrics.issues.Inc()
	}
	reg.obtained = true
	c.cfg.Bus.Publish(Event{Kind: kind, Source: reg.req.name, Certificate: cert})

	if outgoing != nil && c.cfg.Clock.Now().After(outgoing.cert.NotAfter()) {
		c.cfg.Bus.Publish(Event{Kind: EventCertificateExpired, Source: reg.req.name, Certificate: outgoing.cert})
	}
}

// scheduleRotationLocked arms the one-shot rotation for the registration's
// current holder. c.mu must be held.
func (c *Container) scheduleRotationLocked(reg *registration) {
	hold := reg.holder
	name := reg.req.name
	gap := hold.cert.NotAfter().Sub(c.cfg.Clock.Now())
	delay := schedule.RenewalDelay(gap, c.threshold, c.cfg.Rand)
	reg.rotation = c.cfg.Scheduler.Schedule(func() {
		c.rotateScheduled(name, hold)
	}, schedule.OneShotDelay(delay))
}

// rotateScheduled is the scheduled rotation task. The captured holder makes
// cancellation race-free: a task whose holder was already replaced or
// removed does nothing.
func (c *Container) rotateScheduled(name string, hold *holder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateStarted {
		return
	}
	reg, ok := c.regs[name]
	if !ok || reg.holder != hold {
		return
	}
	c.obtainLocked(context.Background(), reg)
}
