package main

import (
	"context"
	"fmt"
	"io"

	"github.com/golemfactory/golem-imager/internal/cli"
)

// reporter prints a line per phase change and per 5% of progress.
type reporter struct {
	out   io.Writer
	phase string
	last  int
}

func (r *reporter) report(phase string, fraction float64, bytes uint64) {
	pct := int(fraction * 100)
	if phase == r.phase && pct < r.last+5 {
		return
	}
	if phase != r.phase {
		fmt.Fprintf(r.out, "%s\n", phase)
	}
	r.phase, r.last = phase, pct
	fmt.Fprintf(r.out, "  %3d%% %s\n", pct, cli.Size(bytes))
}

// watch calls stop once ctx is done, until the returned func is called.
func watch(ctx context.Context, stop func()) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return func() { close(done) }
}
