package imaging

import (
	"io"

	"github.com/golemfactory/golem-imager/cancel"
	"github.com/golemfactory/golem-imager/device"
	"gopkg.in/tomb.v2"
)

const progressBuffer = 16

// Job is a write running on its own goroutine.
type Job struct {
	t        tomb.Tomb
	token    *cancel.Token
	progress chan Progress
	result   Result
}

// Start runs Write on a new goroutine. The progress channel must be drained
// until it is closed, or the job cancelled.
func Start(h device.Handle, src io.Reader, token *cancel.Token, opts Options) *Job {
	if token == nil {
		token = cancel.New()
	}
	j := &Job{
		token:    token,
		progress: make(chan Progress, progressBuffer),
	}
	j.t.Go(func() error {
		defer close(j.progress)
		res, err := Write(h, src, token, opts, j.send)
		j.result = res
		return err
	})
	return j
}

func (j *Job) send(p Progress) {
	select {
	case j.progress <- p:
	case <-j.t.Dying():
	}
}

// Progress returns the ordered event stream; it is closed when the job ends.
func (j *Job) Progress() <-chan Progress {
	return j.progress
}

// Cancel asks the job to stop at its next check. Wait then returns
// cancel.ErrCancelled.
func (j *Job) Cancel() {
	j.token.Cancel()
	j.t.Kill(nil)
}

// Wait blocks until the job ends.
func (j *Job) Wait() (Result, error) {
	err := j.t.Wait()
	return j.result, err
}
