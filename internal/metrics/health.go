package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthStatus is a point-in-time view of Health.
type HealthStatus struct {
	Instance  string    `json:"instance"`
	Status    string    `json:"status"`
	Started   time.Time `json:"started"`
	Since     time.Time `json:"since"`
	LastError string    `json:"lastError,omitempty"`
}

// Health tracks whether the audit stream is keeping up. A sink write
// failure marks it degraded until Recover is called.
type Health struct {
	instance string
	started  time.Time
	now      func() time.Time

	mu      sync.Mutex
	status  string
	since   time.Time
	lastErr string
}

// NewHealth returns a healthy state with a fresh instance id.
func NewHealth(now func() time.Time) *Health {
	if now == nil {
		now = time.Now
	}
	t := now().UTC()
	return &Health{
		instance: uuid.NewString(),
		started:  t,
		now:      now,
		status:   StatusOK,
		since:    t,
	}
}

// Degrade records err and switches to degraded.
func (h *Health) Degrade(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.lastErr = err.Error()
	}
	if h.status != StatusDegraded {
		h.status = StatusDegraded
		h.since = h.now().UTC()
	}
}

// Recover switches back to ok. The last error is kept for inspection.
func (h *Health) Recover() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != StatusOK {
		h.status = StatusOK
		h.since = h.now().UTC()
	}
}

func (h *Health) Degraded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status == StatusDegraded
}

func (h *Health) Status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthStatus{
		Instance:  h.instance,
		Status:    h.status,
		Started:   h.started,
		Since:     h.since,
		LastError: h.lastErr,
	}
}

// ServeHTTP writes the status as JSON. Degraded answers 503.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	st := h.Status()
	w.Header().Set("Content-Type", "application/json")
	if st.Status != StatusOK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}
