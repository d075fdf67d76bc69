package engine

import (
	"context"
	"sync"
)

// Task is a non-owning handle to a spawned background task: a cancel for
// stopping it and a done channel closed when it has fully exited.
type Task struct {
	Name   string
	Cancel context.CancelFunc
	Done   <-chan struct{}
}

// State is the supervisor's single source of truth for run status, tracked
// background tasks, and the shutdown-signal registration. All mutation goes
// through these methods; nothing else reads or writes the fields.
type State struct {
	mu             sync.Mutex
	running        bool
	connectorTasks []Task
	simulatorTask  *Task
	shutdown       func()
}

// NewState returns an empty, stopped supervisor state.
func NewState() *State { return &State{} }

// SetRunning flips the run flag and reports whether the value changed.
// A false return means the engine was already in the requested state.
func (s *State) SetRunning(v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == v {
		return false
	}
	s.running = v
	return true
}

// Running reports the current run flag.
func (s *State) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// AddConnectorTask tracks a connector consumption task.
func (s *State) AddConnectorTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectorTasks = append(s.connectorTasks, t)
}

// SetSimulatorTask tracks the single simulator task.
func (s *State) SetSimulatorTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulatorTask = &t
}

// SetShutdownRegistration stores the deregistration callback for the
// process shutdown signal.
func (s *State) SetShutdownRegistration(stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = stop
}

// CancelAll cancels every tracked task, deregisters the shutdown handler,
// and clears all handles. It returns the done channels of the cancelled
// tasks so the caller can await their exit outside the state lock.
// Idempotent and safe to call when nothing is tracked.
func (s *State) CancelAll() []<-chan struct{} {
	s.mu.Lock()
	tasks := s.connectorTasks
	sim := s.simulatorTask
	shutdown := s.shutdown
	s.connectorTasks = nil
	s.simulatorTask = nil
	s.shutdown = nil
	s.mu.Unlock()

	var done []<-chan struct{}
	for _, t := range tasks {
		t.Cancel()
		done = append(done, t.Done)
	}
	if sim != nil {
		sim.Cancel()
		done = append(done, sim.Done)
	}
	if shutdown != nil {
		shutdown()
	}
	return done
}
