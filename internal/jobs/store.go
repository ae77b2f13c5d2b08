package jobs

import (
	"sort"
	"sync"
	"time"
)

const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Job represents the state of a single operation request
type Job struct {
	ID         string     `json:"id"`
	Operation  string     `json:"operation"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Store holds jobs in memory. Finished jobs are kept for retain and pruned
// on the next Create.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	retain time.Duration
	now    func() time.Time
}

func NewStore(retain time.Duration) *Store {
	return &Store{jobs: make(map[string]*Job), retain: retain, now: time.Now}
}

func (s *Store) Create(id, operation string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.jobs[id] = &Job{ID: id, Operation: operation, Status: StatusRunning, StartedAt: s.now()}
}

// Finish records the terminal status of a job. Unknown ids are ignored.
func (s *Store) Finish(id, status, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok && j.FinishedAt == nil {
		now := s.now()
		j.Status = status
		j.Message = msg
		j.FinishedAt = &now
	}
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Running returns the unfinished jobs, oldest first.
func (s *Store) Running() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, j := range s.jobs {
		if j.FinishedAt == nil {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out
}

func (s *Store) pruneLocked() {
	cutoff := s.now().Add(-s.retain)
	for id, j := range s.jobs {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
