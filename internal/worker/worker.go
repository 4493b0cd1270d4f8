package worker

import "shopchat/internal/models"

type workerReturn struct {
	session *models.ChatSession
	err     error
}

// Worker runs turns handed to it on its own channel. After each turn it
// frees the session for its next job and puts itself back in the idle list.
type Worker struct {
	manager    *Manager
	pool       *jobChannelPool
	jobChannel chan Job
	quit       chan struct{}
}

func NewWorker(pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		manager:    manager,
		pool:       pool,
		jobChannel: make(chan Job),
		quit:       make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go w.loop()
}

func (w *Worker) Stop() {
	close(w.quit)
}

func (w *Worker) loop() {
	for {
		select {
		case <-w.quit:
			return
		case job := <-w.jobChannel:
			if !w.run(job) {
				return
			}
		}
	}
}

// run executes one job and reports whether the worker should keep going.
func (w *Worker) run(job Job) bool {
	if job.Type == Stop {
		w.pool.retire(w.jobChannel)
		return false
	}
	w.manager.handleTurn(job.TurnTask)
	w.manager.dispatcher.done(job.sessionID())
	w.pool.Release(w.jobChannel)
	return true
}
