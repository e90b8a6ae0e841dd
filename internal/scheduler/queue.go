package scheduler

import (
	"container/heap"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/domain"
)

type queueItem struct {
	job   domain.Job
	index int
}

// jobQueue is a min-heap ordered by (TriggerTime, ID).
type jobQueue []*queueItem

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	a, b := q[i].job, q[j].job
	if !a.TriggerTime.Equal(b.TriggerTime) {
		return a.TriggerTime.Before(b.TriggerTime)
	}
	return a.ID < b.ID
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// pendingSet pairs the heap with an id index. Callers hold Scheduler.mu.
type pendingSet struct {
	queue jobQueue
	byID  map[int64]*queueItem
}

func newPendingSet() *pendingSet {
	return &pendingSet{byID: make(map[int64]*queueItem)}
}

func (p *pendingSet) add(job domain.Job) {
	if _, ok := p.byID[job.ID]; ok {
		return
	}
	item := &queueItem{job: job}
	heap.Push(&p.queue, item)
	p.byID[job.ID] = item
}

func (p *pendingSet) remove(id int64) (domain.Job, bool) {
	item, ok := p.byID[id]
	if !ok {
		return domain.Job{}, false
	}
	heap.Remove(&p.queue, item.index)
	delete(p.byID, id)
	return item.job, true
}

func (p *pendingSet) peek() (domain.Job, bool) {
	if len(p.queue) == 0 {
		return domain.Job{}, false
	}
	return p.queue[0].job, true
}

func (p *pendingSet) pop() domain.Job {
	item := heap.Pop(&p.queue).(*queueItem)
	delete(p.byID, item.job.ID)
	return item.job
}

func (p *pendingSet) len() int {
	return len(p.queue)
}
