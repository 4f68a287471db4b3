// Package queue serializes categorization work so that at most one task is
// shown to the user at a time.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shepherdwind/bean-talk/internal/bus"
)

// Dispatcher delivers an event and waits for its handlers.
type Dispatcher interface {
	Request(ctx context.Context, ev bus.Event) error
}

// MerchantPayload is implemented by payloads that belong to a merchant.
type MerchantPayload interface {
	MerchantName() string
}

// Item is one unit of queued work.
type Item struct {
	EnqueuedAt time.Time
	Payload    any
	EventName  string
	TaskID     string
}

// Option configures a Queue.
type Option func(*Queue)

// WithDrainHook sets the function run each time a completion empties the queue.
func WithDrainHook(hook func(ctx context.Context)) Option {
	return func(q *Queue) {
		q.onDrain = hook
	}
}

// WithObserver sets a function told the queue length after every change.
func WithObserver(observe func(length int)) Option {
	return func(q *Queue) {
		q.observe = observe
	}
}

// Queue is a FIFO of tasks with at most one task in flight. When a task
// reaches the head, its payload is dispatched on bus.QueueTopic(EventName);
// it stays in flight until CompleteTask is called with its id.
type Queue struct {
	dispatcher Dispatcher
	onDrain    func(ctx context.Context)
	observe    func(length int)
	now        func() time.Time
	items      []Item // items[0] is the in-flight task when inFlight is set
	mu         sync.Mutex
	inFlight   bool
	pumping    bool
}

// New creates a queue dispatching through d.
func New(d Dispatcher, opts ...Option) *Queue {
	q := &Queue{
		dispatcher: d,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a task unless one with the same taskID is already queued
// or in flight. It reports whether the task was added.
func (q *Queue) Enqueue(ctx context.Context, eventName string, payload any, taskID string) bool {
	q.mu.Lock()
	for _, item := range q.items {
		if item.TaskID == taskID {
			q.mu.Unlock()
			slog.Debug("Task already queued", "task_id", taskID)
			return false
		}
	}
	q.items = append(q.items, Item{
		EventName:  eventName,
		Payload:    payload,
		TaskID:     taskID,
		EnqueuedAt: q.now(),
	})
	length := len(q.items)
	q.mu.Unlock()

	slog.Info("Task enqueued", "task_id", taskID, "event", eventName, "queue_length", length)
	q.notify(length)
	q.pump(ctx)
	return true
}

// CompleteTask removes the task with taskID wherever it sits in the queue.
// Unknown ids are ignored. Completing the last task runs the drain hook;
// otherwise the next task is started.
func (q *Queue) CompleteTask(ctx context.Context, taskID string) bool {
	q.mu.Lock()
	idx := -1
	for i, item := range q.items {
		if item.TaskID == taskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		slog.Debug("Completed task not in queue", "task_id", taskID)
		return false
	}

	if idx == 0 && q.inFlight {
		q.inFlight = false
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	length := len(q.items)
	q.mu.Unlock()

	slog.Info("Task completed", "task_id", taskID, "queue_length", length)
	q.notify(length)

	if length == 0 {
		if q.onDrain != nil {
			slog.Info("Task queue drained")
			q.onDrain(ctx)
		}
		return true
	}

	q.pump(ctx)
	return true
}

// ClearTasksByMerchant drops queued tasks whose payload belongs to merchant.
// The in-flight task is never removed. It returns the number dropped.
func (q *Queue) ClearTasksByMerchant(merchant string) int {
	q.mu.Lock()
	kept := q.items[:0]
	removed := 0
	for i, item := range q.items {
		if i == 0 && q.inFlight {
			kept = append(kept, item)
			continue
		}
		if p, ok := item.Payload.(MerchantPayload); ok && p.MerchantName() == merchant {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = Item{}
	}
	q.items = kept
	length := len(q.items)
	q.mu.Unlock()

	if removed > 0 {
		slog.Info("Cleared stale tasks", "merchant", merchant, "removed", removed)
		q.notify(length)
	}
	return removed
}

// Len returns the number of tasks, including the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// InFlight returns the task currently awaiting completion.
func (q *Queue) InFlight() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.inFlight || len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Snapshot returns a copy of the queue, head first.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// pump starts the head task when nothing is in flight. Only one pump runs at
// a time: a completion that happens while a dispatch is underway just
// clears the in-flight mark and the running pump picks up the next task.
func (q *Queue) pump(ctx context.Context) {
	q.mu.Lock()
	if q.pumping {
		q.mu.Unlock()
		return
	}
	q.pumping = true

	for !q.inFlight && len(q.items) > 0 {
		head := q.items[0]
		q.inFlight = true
		q.mu.Unlock()

		q.dispatch(ctx, head)

		q.mu.Lock()
	}

	q.pumping = false
	q.mu.Unlock()
}

func (q *Queue) dispatch(ctx context.Context, item Item) {
	slog.Debug("Dispatching task", "task_id", item.TaskID, "event", item.EventName)

	err := q.dispatcher.Request(ctx, bus.Event{
		Name:    bus.QueueTopic(item.EventName),
		Payload: item.Payload,
	})
	if err != nil {
		slog.Error("Queued task handler failed, task remains in flight",
			"task_id", item.TaskID,
			"event", item.EventName,
			"error", err)
	}
}

func (q *Queue) notify(length int) {
	if q.observe != nil {
		q.observe(length)
	}
}
