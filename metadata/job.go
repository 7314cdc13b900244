package metadata

import (
	"github.com/golemfactory/golem-imager/cancel"
	"gopkg.in/tomb.v2"
)

// Job is a metadata calculation running on its own goroutine.
type Job struct {
	t        tomb.Tomb
	token    *cancel.Token
	progress chan Progress
	result   ImageMetadata
}

// Start runs Calculate on a new goroutine. The last event on the progress
// channel of a successful job is PhaseComplete; the channel is then closed.
func Start(path string, token *cancel.Token, opts Options) *Job {
	if token == nil {
		token = cancel.New()
	}
	j := &Job{
		token:    token,
		progress: make(chan Progress, 4),
	}
	j.t.Go(func() error {
		defer close(j.progress)
		md, err := Calculate(path, token, opts, j.send)
		if err != nil {
			return err
		}
		j.result = md
		j.send(Progress{Phase: PhaseComplete, Bytes: md.UncompressedSize, Estimated: md.UncompressedSize, Fraction: 1})
		return nil
	})
	return j
}

func (j *Job) send(p Progress) {
	select {
	case j.progress <- p:
	case <-j.t.Dying():
	}
}

func (j *Job) Progress() <-chan Progress {
	return j.progress
}

// Cancel stops the calculation at its next read.
func (j *Job) Cancel() {
	j.token.Cancel()
	j.t.Kill(nil)
}

func (j *Job) Wait() (ImageMetadata, error) {
	err := j.t.Wait()
	return j.result, err
}
