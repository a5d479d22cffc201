package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qkdlab/bb84sim/bb84"
	"github.com/qkdlab/bb84sim/bb84/photon"
	"github.com/qkdlab/bb84sim/bb84/security"
	"github.com/qkdlab/bb84sim/internal/config"
)

// subscriberBuffer is the number of events held for each observer before
// further events are dropped.
const subscriberBuffer = 256

// New sessions start with Eve configured but inactive.
var defaultEve = photon.EveConfigFromPercent(false, 69, 11)

// An entry is one client's session together with its observers.
type entry struct {
	id      string
	session *bb84.Session
	monitor *security.Monitor
	hub     *hub
}

type registry struct {
	cfg       *config.Config
	newSource func() photon.Source
	log       zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

func newRegistry(cfg *config.Config, newSource func() photon.Source, log zerolog.Logger) *registry {
	return &registry{
		cfg:       cfg,
		newSource: newSource,
		log:       log,
		entries:   make(map[string]*entry),
	}
}

func (r *registry) create() (*entry, error) {
	id := uuid.NewString()
	log := r.log.With().Str("session_id", id).Logger()

	monitor, err := security.NewMonitor(security.MonitorOpts{Window: r.cfg.HistoryWindow})
	if err != nil {
		return nil, err
	}
	h := newHub(subscriberBuffer, log)
	session, err := bb84.NewSession(bb84.SessionOpts{
		Source:         r.newSource(),
		Sink:           bb84.MultiSink(monitor, h),
		Log:            &log,
		ReportInterval: r.cfg.ReportInterval,
		StepDelay:      r.cfg.StepDelay,
		Eve:            defaultEve,
	})
	if err != nil {
		return nil, err
	}

	e := &entry{id: id, session: session, monitor: monitor, hub: h}
	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
	log.Info().Msg("session created")
	return e, nil
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// remove forgets the session, abandoning any run and disconnecting its
// observers.
func (r *registry) remove(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		e.close()
	}
	return ok
}

func (r *registry) closeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range entries {
		e.close()
	}
}

func (e *entry) close() {
	if e.session.Status() == bb84.Running {
		e.session.Reset()
	}
	e.hub.closeAll()
}

type sessionKey struct{}

// sessionCtx resolves the {id} URL parameter into a session, answering 404
// for unknown ids.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.sessions.get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, e)))
	})
}

func entryFrom(r *http.Request) *entry {
	return r.Context().Value(sessionKey{}).(*entry)
}
