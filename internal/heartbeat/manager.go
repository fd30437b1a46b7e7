// Package heartbeat tracks per-bot liveness ticks and aggregates them into
// the team health snapshot the dashboard polls.
package heartbeat

import (
	"fmt"
	"sync"
	"time"
)

// alertFailureRate is the per-bot failure share that raises an alert.
const alertFailureRate = 0.5

// staleAfter is how long without a tick before a bot counts as stopped.
const staleAfter = 2 * time.Minute

// Bot is one agent's heartbeat record.
type Bot struct {
	Name        string    `json:"name"`
	Running     bool      `json:"running"`
	Ticks       int       `json:"ticks"`
	FailedTicks int       `json:"failed_ticks"`
	LastBeat    time.Time `json:"last_beat"`
	LastError   string    `json:"last_error,omitempty"`
}

// TeamHealth is the aggregated snapshot.
type TeamHealth struct {
	OverallSuccessRate float64        `json:"overall_success_rate"`
	TotalBots          int            `json:"total_bots"`
	RunningBots        int            `json:"running_bots"`
	TotalTicksAllBots  int            `json:"total_ticks_all_bots"`
	FailedTicksAllBots int            `json:"failed_ticks_all_bots"`
	Bots               map[string]Bot `json:"bots"`
	Alerts             []string       `json:"alerts"`
	Timestamp          time.Time      `json:"timestamp"`
}

// Manager records ticks and serves health snapshots.
type Manager struct {
	mu   sync.Mutex
	bots map[string]*Bot
}

// NewManager builds an empty manager.
func NewManager() *Manager {
	return &Manager{bots: make(map[string]*Bot)}
}

// Tick records one heartbeat for a bot. A non-nil err counts the tick as
// failed and retains the error text.
func (m *Manager) Tick(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[name]
	if !ok {
		b = &Bot{Name: name}
		m.bots[name] = b
	}
	b.Ticks++
	b.LastBeat = time.Now()
	b.Running = true
	if err != nil {
		b.FailedTicks++
		b.LastError = err.Error()
	} else {
		b.LastError = ""
	}
}

// SetRunning flips a bot's running flag explicitly (start/stop lifecycle).
func (m *Manager) SetRunning(name string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[name]
	if !ok {
		b = &Bot{Name: name}
		m.bots[name] = b
	}
	b.Running = running
}

// GetBot returns one bot's record.
func (m *Manager) GetBot(name string) (Bot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[name]
	if !ok {
		return Bot{}, false
	}
	return *b, true
}

// GetTeamHealth aggregates every bot into one snapshot. Bots silent past
// the staleness window count as stopped; high failure rates raise alerts.
func (m *Manager) GetTeamHealth() TeamHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	health := TeamHealth{
		Bots:      make(map[string]Bot, len(m.bots)),
		Timestamp: now,
	}

	for name, b := range m.bots {
		snapshot := *b
		if snapshot.Running && !snapshot.LastBeat.IsZero() && now.Sub(snapshot.LastBeat) > staleAfter {
			snapshot.Running = false
		}
		health.Bots[name] = snapshot
		health.TotalBots++
		if snapshot.Running {
			health.RunningBots++
		}
		health.TotalTicksAllBots += snapshot.Ticks
		health.FailedTicksAllBots += snapshot.FailedTicks

		if snapshot.Ticks > 0 {
			if rate := float64(snapshot.FailedTicks) / float64(snapshot.Ticks); rate >= alertFailureRate {
				health.Alerts = append(health.Alerts,
					fmt.Sprintf("%s failing %d of %d ticks", name, snapshot.FailedTicks, snapshot.Ticks))
			}
		}
		if !snapshot.Running {
			health.Alerts = append(health.Alerts, fmt.Sprintf("%s is not running", name))
		}
	}

	if health.TotalTicksAllBots > 0 {
		ok := health.TotalTicksAllBots - health.FailedTicksAllBots
		health.OverallSuccessRate = float64(ok) / float64(health.TotalTicksAllBots)
	}
	return health
}
