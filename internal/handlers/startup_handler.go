package handlers

import (
	"net/http"
	"sync"
)

// Startup steps reported by /healthz while the server initializes
const (
	StepDatabase   = "Database connection"
	StepMigrations = "Running migrations"
	StepBadWords   = "Loading word filter"
	StepCatalog    = "Seeding lesson catalog"
	StepServices   = "Initializing services"
	StepRealtime   = "Starting realtime hub"
	StepScheduler  = "Starting scheduler"
)

// StartupStatus tracks the initialization progress
type StartupStatus struct {
	mu       sync.RWMutex
	ready    bool
	current  string
	progress int
	steps    []StartupStep
}

type StartupStep struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// StartupReport is the body of GET /healthz
type StartupReport struct {
	Ready    bool          `json:"ready"`
	Current  string        `json:"current"`
	Progress int           `json:"progress"`
	Steps    []StartupStep `json:"steps"`
}

// NewStartupStatus creates a status tracker for the named steps
func NewStartupStatus(steps ...string) *StartupStatus {
	s := &StartupStatus{current: "Initializing..."}
	for _, name := range steps {
		s.steps = append(s.steps, StartupStep{Name: name})
	}
	return s
}

// SetCurrentStep updates the current initialization step
func (s *StartupStatus) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = step
}

// CompleteStep marks a step as completed and updates progress
func (s *StartupStatus) CompleteStep(stepName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.steps {
		if s.steps[i].Name == stepName {
			s.steps[i].Completed = true
			break
		}
	}

	if len(s.steps) == 0 {
		return
	}
	completed := 0
	for _, step := range s.steps {
		if step.Completed {
			completed++
		}
	}
	s.progress = (completed * 100) / len(s.steps)
}

// MarkReady marks the server as fully initialized
func (s *StartupStatus) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.current = "Server ready"
	s.progress = 100
}

// IsReady returns whether the server is fully initialized. A nil status is always ready.
func (s *StartupStatus) IsReady() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Report returns a snapshot of the startup progress
func (s *StartupStatus) Report() StartupReport {
	if s == nil {
		return StartupReport{Ready: true, Current: "Server ready", Progress: 100, Steps: []StartupStep{}}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	steps := make([]StartupStep, len(s.steps))
	copy(steps, s.steps)
	return StartupReport{Ready: s.ready, Current: s.current, Progress: s.progress, Steps: steps}
}

// Healthz reports readiness: 200 once initialized, 503 with progress before that
func (s *StartupStatus) Healthz(w http.ResponseWriter, r *http.Request) {
	report := s.Report()
	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// RequireReady answers 503 until the server is initialized
func (s *StartupStatus) RequireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.IsReady() {
			w.Header().Set("Retry-After", "2")
			respondWithError(w, http.StatusServiceUnavailable, ErrServiceStarting, "", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
