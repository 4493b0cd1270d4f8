package worker

func (d *Dispatcher) hasPending(sessionID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.queues[sessionID]
	return q != nil && len(q.jobs) > 0
}

func (p *jobChannelPool) size() (running, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, len(p.idle)
}
