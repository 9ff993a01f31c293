package coordinator

import (
	"context"

	"github.com/nasmon/unraid/pkg/api"
	"github.com/nasmon/unraid/pkg/metrics"
	"github.com/nasmon/unraid/pkg/types"
)

// OnDiscovery registers a callback fired once per newly seen identity in
// the given category. Identities already known are replayed immediately so
// late subscribers still see the full population.
func (c *Coordinator) OnDiscovery(cat Category, fn func(id string)) {
	c.mu.Lock()
	c.discovery[cat] = append(c.discovery[cat], fn)
	replay := make([]string, 0, len(c.known[cat]))
	for id := range c.known[cat] {
		replay = append(replay, id)
	}
	c.mu.Unlock()

	for _, id := range replay {
		invokeCallback(fn, id)
	}
}

// OnContainerRemoved registers a callback fired when a Docker container
// disappears from a poll. Containers are the only category that forgets
// identities; a removed container that reappears is rediscovered.
func (c *Coordinator) OnContainerRemoved(fn func(id string)) {
	c.mu.Lock()
	c.removal[CategoryDocker] = append(c.removal[CategoryDocker], fn)
	c.mu.Unlock()
}

// notifyDiscoveries diffs the next snapshot against the known identity
// sets, fires discovery callbacks for unseen identities and removal
// callbacks for vanished containers.
func (c *Coordinator) notifyDiscoveries(next *Snapshot) {
	type event struct {
		fn []func(string)
		id string
	}
	var discovered, removed []event

	c.mu.Lock()
	for _, cat := range Categories {
		present := snapshotIDs(next, cat)
		for id := range present {
			if _, ok := c.known[cat][id]; ok {
				continue
			}
			c.known[cat][id] = struct{}{}
			if c.store != nil {
				if err := c.store.Add(string(cat), id); err != nil {
					c.log.Warn().Err(err).Str("category", string(cat)).Msg("failed to persist identity")
				}
			}
			metrics.EntitiesDiscovered.WithLabelValues(string(cat)).Inc()
			discovered = append(discovered, event{fn: c.discovery[cat], id: id})
		}

		if cat != CategoryDocker {
			continue
		}
		for id := range c.known[cat] {
			if _, ok := present[id]; ok {
				continue
			}
			delete(c.known[cat], id)
			if c.store != nil {
				if err := c.store.Remove(string(cat), id); err != nil {
					c.log.Warn().Err(err).Msg("failed to forget container")
				}
			}
			removed = append(removed, event{fn: c.removal[cat], id: id})
		}
	}
	c.mu.Unlock()

	for _, ev := range discovered {
		for _, fn := range ev.fn {
			invokeCallback(fn, ev.id)
		}
	}
	for _, ev := range removed {
		for _, fn := range ev.fn {
			invokeCallback(fn, ev.id)
		}
	}
}

// invokeCallback isolates subscriber panics from the poll cycle.
func invokeCallback(fn func(string), id string) {
	defer func() { recover() }()
	fn(id)
}

func snapshotIDs(s *Snapshot, cat Category) map[string]struct{} {
	ids := make(map[string]struct{})
	switch cat {
	case CategoryDisks:
		for id := range s.Disks {
			ids[id] = struct{}{}
		}
	case CategoryShares:
		for id := range s.Shares {
			ids[id] = struct{}{}
		}
	case CategoryUPS:
		for id := range s.UPSDevices {
			ids[id] = struct{}{}
		}
	case CategoryDocker:
		for id := range s.Containers {
			ids[id] = struct{}{}
		}
	case CategoryVMs:
		for id := range s.VMs {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// connectStream establishes the subscription channel and registers the
// push handlers. Failures degrade to poll-only operation; the first
// failure logs at error, repeats at debug until a connect succeeds.
func (c *Coordinator) connectStream(ctx context.Context) {
	if err := c.client.StartStream(ctx); err != nil {
		if c.streamErrLogged.CompareAndSwap(false, true) {
			c.log.Error().Err(err).Msg("subscription channel unavailable, falling back to polling")
		} else {
			c.log.Debug().Err(err).Msg("subscription channel still unavailable")
		}
		return
	}
	c.streamErrLogged.Store(false)

	if err := c.client.SubscribeCPUUsage(c.onCPUUsage); err != nil {
		c.log.Warn().Err(err).Msg("cpu usage subscription failed")
	}
	if err := c.client.SubscribeMemory(c.onMemory); err != nil {
		c.log.Warn().Err(err).Msg("memory subscription failed")
	}
	if sub, ok := c.client.(api.CPUTelemetrySubscriber); ok {
		if err := sub.SubscribeCPUTelemetry(c.onCPUTelemetry); err != nil {
			c.log.Warn().Err(err).Msg("cpu telemetry subscription failed")
		}
	}

	c.log.Debug().Msg("subscription channel established")
}

// patchSnapshot swaps in a patched copy of the current snapshot. Push
// messages arriving before the first poll are dropped; there is nothing
// to patch yet.
func (c *Coordinator) patchSnapshot(patch func(*Snapshot)) {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	if c.snap == nil {
		return
	}
	next := *c.snap
	patch(&next)
	c.snap = &next
}

func (c *Coordinator) onCPUUsage(pct float64) {
	c.patchSnapshot(func(s *Snapshot) {
		s.CPUUsage = pct
		if s.Metrics != nil {
			m := *s.Metrics
			m.CPUPercentTotal = pct
			s.Metrics = &m
		}
	})
}

func (c *Coordinator) onMemory(mem types.MemoryUsage) {
	c.patchSnapshot(func(s *Snapshot) {
		s.Memory = mem
		if s.Metrics != nil {
			m := *s.Metrics
			m.MemoryFree = mem.Free
			m.MemoryTotal = mem.Total
			m.MemoryActive = mem.Active
			m.MemoryAvailable = mem.Available
			m.MemoryPercentTotal = mem.PercentTotal
			s.Metrics = &m
		}
	})
}

func (c *Coordinator) onCPUTelemetry(t types.CPUTelemetry) {
	c.patchSnapshot(func(s *Snapshot) {
		tel := t
		s.CPUTelemetry = &tel
		if s.Metrics != nil {
			m := *s.Metrics
			m.CPUTemp = &tel.Temp
			m.CPUPower = &tel.Power
			s.Metrics = &m
		}
	})
}
