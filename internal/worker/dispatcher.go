package worker

import (
	"container/list"
	"sync"
	"time"
)

// maxSessionBacklog bounds how many turns may wait behind a running one.
const maxSessionBacklog = 16

type sessionQueue struct {
	jobs     []Job
	enqueued bool // in the ready list
	running  bool // a job of this session is on a worker
}

// Dispatcher hands jobs to the worker pool, at most one per session at a
// time. Sessions with pending work take turns in ready order.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	Manager  *Manager

	mu        sync.Mutex
	queues    map[int64]*sessionQueue
	ready     *list.List // session ids with a job that may run now
	positions map[int64]*list.Element

	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, manager *Manager, idleTimeout time.Duration) *Dispatcher {
	if minWorkers <= 0 {
		minWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	pool := newJobChannelPool(minWorkers, maxWorkers, idleTimeout, manager)

	d := &Dispatcher{
		queues:    make(map[int64]*sessionQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		pool:      pool,
		JobQueue:  make(chan Job, queueSize),
		Manager:   manager,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for {
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.wake:
			case <-d.quit:
				d.drain()
				return
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			d.drain()
			return
		default:
		}
	}
}

// Submit queues job without blocking.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.quit:
		return ErrClosed
	default:
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// CancelSession fails every pending job of the session. A job already
// running is left to finish.
func (d *Dispatcher) CancelSession(sessionID int64) {
	d.mu.Lock()
	q := d.queues[sessionID]
	if q == nil {
		d.mu.Unlock()
		return
	}
	pending := q.jobs
	q.jobs = nil
	if elem, ok := d.positions[sessionID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, sessionID)
	}
	q.enqueued = false
	if !q.running {
		delete(d.queues, sessionID)
	}
	d.mu.Unlock()

	for _, job := range pending {
		job.fail(ErrSessionCancelled)
	}
}

func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.quit)
		d.pool.close()
	})
}

func (d *Dispatcher) enqueueJob(job Job) {
	sessionID := job.sessionID()

	d.mu.Lock()
	q := d.queues[sessionID]
	if q == nil {
		q = &sessionQueue{}
		d.queues[sessionID] = q
	}
	if len(q.jobs) >= maxSessionBacklog {
		d.mu.Unlock()
		job.fail(ErrQueueFull)
		return
	}
	q.jobs = append(q.jobs, job)
	if !q.enqueued && !q.running {
		q.enqueued = true
		d.positions[sessionID] = d.ready.PushBack(sessionID)
	}
	d.mu.Unlock()
}

// dispatchOne hands the next job of the first ready session to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	sessionID := elem.Value.(int64)
	d.ready.Remove(elem)
	delete(d.positions, sessionID)
	q := d.queues[sessionID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	d.mu.Unlock()

	workerChan, ok := d.pool.acquire()
	if !ok {
		d.done(sessionID)
		job.fail(ErrClosed)
		return true
	}
	debugLog("[dispatcher] assign %s job for session %d to worker-%d", job.Type, sessionID, d.pool.workerID(workerChan))
	select {
	case workerChan <- job:
	case <-d.quit:
		d.done(sessionID)
		job.fail(ErrClosed)
	}
	return true
}

// done marks the running job of sessionID finished and makes the session's
// next job eligible.
func (d *Dispatcher) done(sessionID int64) {
	d.mu.Lock()
	if q := d.queues[sessionID]; q != nil {
		q.running = false
		if len(q.jobs) > 0 {
			if !q.enqueued {
				q.enqueued = true
				d.positions[sessionID] = d.ready.PushBack(sessionID)
			}
		} else {
			delete(d.queues, sessionID)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// drain fails everything still waiting once the dispatcher stops.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	var pending []Job
	for id, q := range d.queues {
		pending = append(pending, q.jobs...)
		delete(d.queues, id)
	}
	d.ready.Init()
	d.positions = make(map[int64]*list.Element)
	d.mu.Unlock()

	for {
		select {
		case job := <-d.JobQueue:
			pending = append(pending, job)
		default:
			for _, job := range pending {
				job.fail(ErrClosed)
			}
			return
		}
	}
}
