package imaging

// Phase of an image write.
type Phase int

const (
	PhasePrepare Phase = iota
	PhaseWrite
	PhaseVerify
	PhaseFinalize
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "prepare"
	case PhaseWrite:
		return "write"
	case PhaseVerify:
		return "verify"
	case PhaseFinalize:
		return "finalize"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Progress is a snapshot of a running write. Bytes counts image bytes, never
// padding. Fraction is 0 while Total is unknown.
type Progress struct {
	Phase    Phase
	Bytes    uint64
	Total    uint64
	Fraction float64
}

func newProgress(phase Phase, n, total uint64) Progress {
	p := Progress{Phase: phase, Bytes: n, Total: total}
	if total > 0 {
		p.Fraction = min(float64(n)/float64(total), 1)
	}
	return p
}
