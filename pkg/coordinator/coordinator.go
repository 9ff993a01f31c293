package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nasmon/unraid/pkg/api"
	"github.com/nasmon/unraid/pkg/graphql"
	"github.com/nasmon/unraid/pkg/metrics"
	"github.com/nasmon/unraid/pkg/state"
	"github.com/nasmon/unraid/pkg/types"
)

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = time.Minute

// Collections toggles which entity categories a coordinator polls. The
// zero value polls nothing but metrics; Start enables everything unless
// WithCollections overrides it.
type Collections struct {
	Disks  bool
	Shares bool
	Docker bool
	VMs    bool
	UPS    bool
}

// AllCollections enables every category.
var AllCollections = Collections{Disks: true, Shares: true, Docker: true, VMs: true, UPS: true}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithLogger sets the coordinator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithStore persists known identities so discovery notifications stay
// one-time across restarts.
func WithStore(s *state.Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithCollections selects which categories to poll.
func WithCollections(cols Collections) Option {
	return func(c *Coordinator) { c.collections = cols }
}

// flight tracks one in-progress refresh so concurrent requests can wait
// for its result instead of issuing another round trip.
type flight struct {
	done chan struct{}
	err  error
}

// Coordinator owns the polling loop, the discovery state and the push
// subscription callbacks for one Unraid server session.
type Coordinator struct {
	client      api.Client
	log         zerolog.Logger
	interval    time.Duration
	store       *state.Store
	collections Collections

	snapMu sync.RWMutex
	snap   *Snapshot

	// mu guards known identity sets and callback registries.
	mu        sync.Mutex
	known     map[Category]map[string]struct{}
	discovery map[Category][]func(string)
	removal   map[Category][]func(string)

	flightMu sync.Mutex
	flight   *flight

	streamErrLogged atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a coordinator for the given client. Call Start to run the
// polling loop, or drive Refresh manually.
func New(client api.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:      client,
		log:         zerolog.Nop(),
		interval:    DefaultInterval,
		collections: AllCollections,
		known:       make(map[Category]map[string]struct{}),
		discovery:   make(map[Category][]func(string)),
		removal:     make(map[Category][]func(string)),
		stopCh:      make(chan struct{}),
	}
	for _, cat := range Categories {
		c.known[cat] = make(map[string]struct{})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current snapshot, or nil before the first
// successful refresh. The returned value is immutable.
func (c *Coordinator) Snapshot() *Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// Start loads persisted discovery state, connects the push stream,
// performs the initial refresh and launches the polling loop. The initial
// refresh error is returned so hosts can fail setup early.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.loadKnown(); err != nil {
		return err
	}

	c.connectStream(ctx)

	if err := c.Refresh(ctx); err != nil {
		return err
	}

	go c.run(ctx)
	return nil
}

// Stop terminates the polling loop and tears down the subscription
// channel.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.client.StopStream()
	})
}

func (c *Coordinator) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !c.client.StreamConnected() {
				c.connectStream(ctx)
			}
			if err := c.Refresh(ctx); err != nil {
				c.log.Warn().Err(err).Bool("retryable", Retryable(err)).Msg("refresh failed")
			}
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Refresh performs one full-snapshot poll, or joins the refresh already in
// flight. Authentication failures are wrapped with ErrReauthRequired.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.flightMu.Lock()
	if f := c.flight; f != nil {
		c.flightMu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.flight = f
	c.flightMu.Unlock()

	err := c.refresh(ctx)
	if err != nil {
		var unauthorized *graphql.UnauthorizedError
		if errors.As(err, &unauthorized) {
			err = fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		metrics.PollCyclesTotal.WithLabelValues("error").Inc()
	} else {
		metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
	}

	f.err = err
	c.flightMu.Lock()
	c.flight = nil
	c.flightMu.Unlock()
	close(f.done)

	return err
}

// refresh issues the full query set, builds the next snapshot, fires
// discovery notifications for unseen identities and swaps the snapshot in.
func (c *Coordinator) refresh(ctx context.Context) error {
	cur := c.Snapshot()
	next := &Snapshot{TakenAt: time.Now()}

	var (
		serverInfo *types.ServerInfo
		metricsArr *types.MetricsArray
		disks      []types.Disk
		shares     []types.Share
		upsDevices []types.UPSDevice
		containers []types.DockerContainer
		vms        []types.VirtualMachine
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		metricsArr, err = c.client.MetricsArray(gctx)
		return err
	})

	// Server identity is static; query it once per session.
	if cur == nil || cur.ServerInfo == nil {
		g.Go(func() error {
			var err error
			serverInfo, err = c.client.ServerInfo(gctx)
			return err
		})
	} else {
		serverInfo = cur.ServerInfo
	}

	if c.collections.Disks {
		g.Go(func() error {
			var err error
			disks, err = c.client.Disks(gctx)
			return err
		})
	}
	if c.collections.Shares {
		g.Go(func() error {
			var err error
			shares, err = c.client.Shares(gctx)
			return err
		})
	}
	if c.collections.Docker {
		g.Go(func() error {
			var err error
			containers, err = c.client.DockerContainers(gctx)
			return err
		})
	}
	if c.collections.VMs {
		g.Go(func() error {
			var err error
			vms, err = c.client.VirtualMachines(gctx)
			return err
		})
	}
	if q, ok := c.client.(api.UPSQuerier); ok && c.collections.UPS {
		g.Go(func() error {
			devices, err := q.UPSDevices(gctx)
			if err != nil {
				// UPS support is flaky on some servers; a failed UPS
				// query degrades to an empty list instead of failing
				// the whole refresh.
				c.log.Debug().Err(err).Msg("ups query failed")
				return nil
			}
			upsDevices = devices
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	next.ServerInfo = serverInfo
	next.Metrics = metricsArr

	next.Disks = make(map[string]types.Disk, len(disks))
	for _, d := range disks {
		next.Disks[d.ID] = d
	}
	next.Shares = make(map[string]types.Share, len(shares))
	for _, s := range shares {
		next.Shares[s.Name] = s
	}
	next.UPSDevices = make(map[string]types.UPSDevice, len(upsDevices))
	for _, u := range upsDevices {
		next.UPSDevices[u.ID] = u
	}
	next.Containers = make(map[string]types.DockerContainer, len(containers))
	for _, d := range containers {
		next.Containers[d.ID] = d
	}
	next.VMs = make(map[string]types.VirtualMachine, len(vms))
	for _, v := range vms {
		next.VMs[v.ID] = v
	}

	c.carryLiveValues(cur, next, metricsArr)

	c.notifyDiscoveries(next)

	c.snapMu.Lock()
	c.snap = next
	c.snapMu.Unlock()

	for _, cat := range Categories {
		metrics.SnapshotEntities.WithLabelValues(string(cat)).Set(float64(next.count(cat)))
	}

	return nil
}

// carryLiveValues fills the push-owned fields of the next snapshot. While
// the stream is connected the last pushed values survive the poll; when it
// is down the poll backfills them so consumers never go stale.
func (c *Coordinator) carryLiveValues(cur, next *Snapshot, m *types.MetricsArray) {
	streaming := c.client.StreamConnected() && cur != nil

	if streaming {
		next.CPUUsage = cur.CPUUsage
		next.Memory = cur.Memory
	} else {
		next.CPUUsage = m.CPUPercentTotal
		next.Memory = types.MemoryUsage{
			Free:         m.MemoryFree,
			Total:        m.MemoryTotal,
			Active:       m.MemoryActive,
			Available:    m.MemoryAvailable,
			PercentTotal: m.MemoryPercentTotal,
		}
	}

	switch {
	case m.CPUTemp != nil && m.CPUPower != nil:
		// The poll is authoritative when the variant reports telemetry.
		next.CPUTelemetry = &types.CPUTelemetry{Temp: *m.CPUTemp, Power: *m.CPUPower}
	case streaming:
		next.CPUTelemetry = cur.CPUTelemetry
	}
}

// loadKnown seeds the known identity sets from the persistent store.
func (c *Coordinator) loadKnown() error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range Categories {
		ids, err := c.store.KnownIDs(string(cat))
		if err != nil {
			return fmt.Errorf("failed to load known %s: %w", cat, err)
		}
		c.known[cat] = ids
	}
	return nil
}
