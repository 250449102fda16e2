package core

import (
	"sync"
	"time"
)

// StatusSnapshot is a copy of the runtime state safe to hand out.
type StatusSnapshot struct {
	Running       bool      `json:"running"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	LastError     string    `json:"last_error"`
}

// RuntimeState is the explicit bot-status handle shared by the chat handler
// and the dashboard API. Lifecycle is owned by the process bootstrap; every
// reader receives the handle instead of touching package globals.
type RuntimeState struct {
	mu            sync.Mutex
	running       bool
	lastHeartbeat time.Time
	lastError     string
}

func NewRuntimeState() *RuntimeState {
	return &RuntimeState{}
}

func (s *RuntimeState) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

func (s *RuntimeState) Heartbeat(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHeartbeat = t
}

func (s *RuntimeState) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		s.lastError = ""
		return
	}
	s.lastError = err.Error()
}

func (s *RuntimeState) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusSnapshot{
		Running:       s.running,
		LastHeartbeat: s.lastHeartbeat,
		LastError:     s.lastError,
	}
}
