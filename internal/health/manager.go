// Package health implements periodic health monitoring: host resource
// thresholds, delivery queue backlogs, and a status heartbeat for
// telemetry consumers.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/config"
	"github.com/bluefox-project/bluefox/internal/events"
	"github.com/bluefox-project/bluefox/internal/lobby"
	"github.com/bluefox-project/bluefox/internal/network"
	"github.com/bluefox-project/bluefox/internal/util"
)

// Queue depths beyond this suggest a tunnel client stopped polling.
const queueBacklogThreshold = 64

// Manager runs periodic health checks on the host and the lobby state.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	svc      *lobby.Service
	conns    *network.ConnectionRegistry
}

// NewManager creates a new health check manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus, svc *lobby.Service,
	conns *network.ConnectionRegistry) *Manager {
	return &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		svc:      svc,
		conns:    conns,
	}
}

// Start launches all health check goroutines and blocks until the context
// is cancelled.
func (m *Manager) Start(ctx context.Context) {
	timers := m.cfg.GetApplicationData().Timers

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"disk_utilization", timers.HealthInterval, m.checkDiskUtilization},
		{"memory", timers.HealthInterval, m.checkMemory},
		{"queue_backlog", timers.HealthInterval, m.checkQueueBacklog},
	}

	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}

		check := check
		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			// Run immediately on startup
			log.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	// Heartbeat (special: publishes MQTT status)
	go m.heartbeatLoop(ctx, time.Duration(timers.HeartbeatInterval)*time.Second)

	log.Info().Int("checks", len(checks)).Msg("health check manager started")

	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

// checkDiskUtilization monitors disk space and alerts at thresholds.
func (m *Manager) checkDiskUtilization(ctx context.Context) {
	usage, err := util.GetDiskUsage("/")
	if err != nil {
		log.Warn().Err(err).Msg("disk utilization check failed")
		return
	}

	log.Debug().
		Float64("used_percent", usage.UsedPercent).
		Uint64("free_gb", usage.Free).
		Msg("disk utilization")

	var level string
	switch {
	case usage.UsedPercent >= 95:
		level = "critical"
	case usage.UsedPercent >= 90:
		level = "error"
	case usage.UsedPercent >= 80:
		level = "warning"
	default:
		return
	}

	m.alert(ctx, level, "Disk space low",
		fmt.Sprintf("disk usage at %.1f%%, %d GB free", usage.UsedPercent, usage.Free))
}

// checkMemory alerts when host memory pressure threatens the process.
func (m *Manager) checkMemory(ctx context.Context) {
	mem, err := util.GetMemoryUsage()
	if err != nil {
		log.Warn().Err(err).Msg("memory check failed")
		return
	}

	if mem.UsedPercent < 90 {
		return
	}

	level := "warning"
	if mem.UsedPercent >= 97 {
		level = "critical"
	}
	m.alert(ctx, level, "Memory pressure",
		fmt.Sprintf("host memory usage at %.1f%% (%d MB available)", mem.UsedPercent, mem.Available))
}

// checkQueueBacklog flags sessions whose delivery queue keeps growing.
// A deep queue means a tunnel client stopped polling but the session has
// not idled out yet.
func (m *Manager) checkQueueBacklog(ctx context.Context) {
	backlogged := 0
	for _, sess := range m.svc.Sessions().Snapshot() {
		if sess.QueueLen() >= queueBacklogThreshold {
			backlogged++
			log.Warn().
				Str("session", sess.ID()).
				Int("queue_len", sess.QueueLen()).
				Msg("session delivery queue backlogged")
		}
	}

	if backlogged > 0 {
		m.alert(ctx, "warning", "Delivery queue backlog",
			fmt.Sprintf("%d sessions have backlogged delivery queues", backlogged))
	}
}

// heartbeatLoop periodically publishes a status snapshot for telemetry.
func (m *Manager) heartbeatLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.eventBus.Emit(ctx, events.Event{
				Type:   events.EventNotifyMQTT,
				Source: "health",
				Payload: map[string]interface{}{
					"sessions":        m.svc.Sessions().Count(),
					"rooms":           m.svc.Rooms().Count(),
					"tcp_connections": m.conns.Count(),
				},
			})
		}
	}
}

func (m *Manager) alert(ctx context.Context, level, title, message string) {
	m.eventBus.Emit(ctx, events.Event{
		Type:   events.EventAlert,
		Source: "health",
		Payload: events.AlertPayload{
			Level:   level,
			Title:   title,
			Message: message,
		},
	})
}
