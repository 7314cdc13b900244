package metadata

// Phase of preparing an image: it is downloaded first, then its metadata is
// calculated.
type Phase int

const (
	PhaseDownload Phase = iota
	PhaseMetadata
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseDownload:
		return "download"
	case PhaseMetadata:
		return "metadata"
	case PhaseComplete:
		return "complete"
	}
	return "unknown"
}

// Progress of one phase.
type Progress struct {
	Phase Phase
	Bytes uint64
	// Estimated total bytes of the phase
	Estimated uint64
	// Fraction of the phase, 0 to 1
	Fraction float64
}

// Overall maps phase progress onto a single 0 to 1 scale: the download is
// the first half, the metadata calculation the second.
func (p Progress) Overall() float64 {
	f := min(max(p.Fraction, 0), 1)
	switch p.Phase {
	case PhaseDownload:
		return f * 0.5
	case PhaseMetadata:
		return 0.5 + f*0.5
	}
	return 1
}
