// Package session owns the per-user controller instances. Each
// authenticated subject gets its own client list, invoice list, and
// settings controllers, created on first use and evicted after a period
// of inactivity. Controllers are explicit dependencies handed to the
// transport layer, never process-wide singletons.
package session

import (
	"sync"
	"time"

	"github.com/billtrack/bff/internal/gateway"
	"github.com/billtrack/bff/internal/liststate"
	"github.com/billtrack/bff/internal/settings"
	"github.com/billtrack/bff/model"
)

// Session bundles the controllers owned by one subject.
type Session struct {
	Clients  *liststate.Controller[model.Client]
	Invoices *liststate.Controller[model.Invoice]
	Settings *settings.Controller

	lastSeen time.Time
}

// Registry hands out sessions keyed by subject and sweeps idle ones.
type Registry struct {
	clientsGW  *gateway.Clients
	invoicesGW *gateway.Invoices
	settingsGW *gateway.Settings
	pageSize   int
	ttl        time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	onCount  func(int)

	stop chan struct{}
	once sync.Once
}

// NewRegistry creates a session registry. Sessions idle longer than ttl
// are evicted by a background sweep every sweepInterval.
func NewRegistry(
	clientsGW *gateway.Clients,
	invoicesGW *gateway.Invoices,
	settingsGW *gateway.Settings,
	pageSize int,
	ttl, sweepInterval time.Duration,
) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	r := &Registry{
		clientsGW:  clientsGW,
		invoicesGW: invoicesGW,
		settingsGW: settingsGW,
		pageSize:   pageSize,
		ttl:        ttl,
		sessions:   make(map[string]*Session),
		stop:       make(chan struct{}),
	}
	go r.sweep(sweepInterval)
	return r
}

// Get returns the session for the given subject, creating it on first
// use. Every call refreshes the idle timer.
func (r *Registry) Get(subjectID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[subjectID]
	if !ok {
		s = &Session{
			Clients: liststate.New[model.Client](r.clientsGW,
				liststate.WithPageSize(r.pageSize)),
			Invoices: liststate.New[model.Invoice](r.invoicesGW,
				liststate.WithPageSize(r.pageSize),
				liststate.WithStatusFilter(model.StatusFilterAll)),
			Settings: settings.New(r.settingsGW),
		}
		r.sessions[subjectID] = s
		if r.onCount != nil {
			r.onCount(len(r.sessions))
		}
	}
	s.lastSeen = time.Now()
	return s
}

// OnCountChange registers a hook invoked with the live session count
// whenever a session is created or evicted. Used for the sessions gauge.
func (r *Registry) OnCountChange(fn func(int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCount = fn
}

// Len returns the number of live sessions. For testing and metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops the background sweep.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
}

func (r *Registry) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.evictIdle()
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := time.Now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := false
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			evicted = true
		}
	}
	if evicted && r.onCount != nil {
		r.onCount(len(r.sessions))
	}
}
