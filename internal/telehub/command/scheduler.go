package command

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

type task struct {
	vehicleID string
	group     string
	timer     clock.Timer
}

// Scheduler runs one delayed task per command id. Tasks can be cancelled by
// id, by vehicle, or by a newer task for the same vehicle and group.
type Scheduler struct {
	clock clock.WithDelayedExecution

	mu    sync.Mutex
	tasks map[string]*task
}

func NewScheduler(c clock.WithDelayedExecution) *Scheduler {
	return &Scheduler{
		clock: c,
		tasks: make(map[string]*task),
	}
}

// Schedule runs fn after delay unless the task is cancelled first. Pending
// tasks of the same vehicle and group are cancelled and their ids returned.
func (s *Scheduler) Schedule(id, vehicleID, group string, delay time.Duration, fn func()) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var superseded []string
	for otherID, t := range s.tasks {
		if t.vehicleID == vehicleID && t.group == group && otherID != id {
			t.timer.Stop()
			delete(s.tasks, otherID)
			superseded = append(superseded, otherID)
		}
	}

	t := &task{vehicleID: vehicleID, group: group}
	t.timer = s.clock.AfterFunc(delay, func() {
		if !s.claim(id, t) {
			return
		}
		fn()
	})
	s.tasks[id] = t
	return superseded
}

// claim removes the task right before it runs. It fails when the task was
// cancelled or replaced after its timer fired.
func (s *Scheduler) claim(id string, t *task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[id] != t {
		return false
	}
	delete(s.tasks, id)
	return true
}

// Cancel stops the task of id. It reports whether a task was pending.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, id)
	return true
}

// CancelVehicle stops every pending task of vehicleID and returns their ids.
func (s *Scheduler) CancelVehicle(vehicleID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, t := range s.tasks {
		if t.vehicleID == vehicleID {
			t.timer.Stop()
			delete(s.tasks, id)
			ids = append(ids, id)
		}
	}
	return ids
}

// Pending returns the number of tasks waiting to run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels every task and returns their ids.
func (s *Scheduler) Stop() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tasks))
	for id, t := range s.tasks {
		t.timer.Stop()
		delete(s.tasks, id)
		ids = append(ids, id)
	}
	return ids
}
