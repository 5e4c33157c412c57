package eval

import "github.com/freeeve/blunderscan/internal/game"

// Queue holds games waiting for a worker, in the order they were supplied.
// A game id is accepted once per queue lifetime, so a batch that repeats a
// game never schedules it twice. A Queue is owned by one goroutine.
type Queue struct {
	queue []game.Record
	seen  map[string]bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		queue: make([]game.Record, 0),
		seen:  make(map[string]bool),
	}
}

// Enqueue adds rec unless its id was already queued.
// Returns true if the game was added.
func (q *Queue) Enqueue(rec game.Record) bool {
	if q.seen[rec.ID] {
		return false
	}
	q.queue = append(q.queue, rec)
	q.seen[rec.ID] = true
	return true
}

// Dequeue returns the next game (FIFO) or false if empty.
func (q *Queue) Dequeue() (game.Record, bool) {
	if len(q.queue) == 0 {
		return game.Record{}, false
	}
	rec := q.queue[0]
	q.queue = q.queue[1:]
	return rec, true
}

// Len returns the number of games still waiting.
func (q *Queue) Len() int {
	return len(q.queue)
}
