package worker

type JobType int

const (
	Turn JobType = iota
	Stop
)

func (t JobType) String() string {
	switch t {
	case Turn:
		return "turn"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

type Job struct {
	Type     JobType
	TurnTask *turnTask
}

type turnTask struct {
	req      TurnRequest
	resultCh chan workerReturn
}

func (job Job) sessionID() int64 {
	if job.Type == Turn && job.TurnTask != nil {
		return job.TurnTask.req.SessionID
	}
	return 0
}

// fail reports err to the submitter without running the job.
func (job Job) fail(err error) {
	if job.TurnTask != nil && job.TurnTask.resultCh != nil {
		job.TurnTask.resultCh <- workerReturn{err: err}
	}
}
