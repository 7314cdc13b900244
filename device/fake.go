package device

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/golemfactory/golem-imager/backend"
)

// Fake is an in-memory Manager. Devices are byte slices registered with Add;
// every handle works on a clone with its own cursor over the same bytes.
type Fake struct {
	// Aligned makes handles require sector-aligned I/O
	Aligned bool
	// SectorSize reported by handles, 512 if zero
	SectorSize int
	// PreWriteErr is returned by PreWriteChecks
	PreWriteErr error

	mu     sync.Mutex
	disks  map[string]*backend.Memory
	info   map[string]Disk
	events []string
}

// NewFake returns an empty fake manager.
func NewFake() *Fake {
	return &Fake{
		disks: map[string]*backend.Memory{},
		info:  map[string]Disk{},
	}
}

// Add registers a zeroed device of size bytes at path.
func (f *Fake) Add(path string, size int64) *backend.Memory {
	return f.AddDisk(Disk{Path: path, Name: path, SizeBytes: uint64(size), Removable: true}, make([]byte, size))
}

// AddDisk registers a device backed by data.
func (f *Fake) AddDisk(d Disk, data []byte) *backend.Memory {
	f.mu.Lock()
	defer f.mu.Unlock()
	ss := f.SectorSize
	if ss == 0 {
		ss = 512
	}
	m := backend.NewNamedMemory(d.Path, data, ss)
	d.SizeBytes = uint64(len(data))
	f.disks[d.Path] = m
	f.info[d.Path] = d
	return m
}

// Events returns what happened to the fake devices, in order.
func (f *Fake) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *Fake) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fmt.Sprintf(format, args...))
}

func (f *Fake) Open(ctx context.Context, path string, opts Options) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	m, ok := f.disks[path]
	f.mu.Unlock()
	if !ok {
		return nil, NewOpenError(path, NotFound, errFileNotFound, fmt.Errorf("no fake device at %s", path))
	}
	c, err := m.Clone()
	if err != nil {
		return nil, err
	}
	f.record("open %s", path)
	return &fakeHandle{Storage: c, fake: f, path: path, readOnly: opts.ReadOnly}, nil
}

func (f *Fake) List(ctx context.Context) ([]Disk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	disks := make([]Disk, 0, len(f.info))
	for _, d := range f.info {
		disks = append(disks, d)
	}
	sort.Slice(disks, func(i, j int) bool { return disks[i].Path < disks[j].Path })
	return disks, nil
}

type fakeHandle struct {
	backend.Storage
	fake     *Fake
	path     string
	readOnly bool
}

func (h *fakeHandle) Path() string {
	return h.path
}

func (h *fakeHandle) Name() string {
	return h.path
}

func (h *fakeHandle) Write(p []byte) (int, error) {
	if h.readOnly {
		return 0, backend.ErrIncorrectOpenMode
	}
	return h.Storage.Write(p)
}

func (h *fakeHandle) SectorSize() int {
	if h.fake.Aligned {
		return max(h.Storage.SectorSize(), 4096)
	}
	return h.Storage.SectorSize()
}

func (h *fakeHandle) Clone() (backend.Storage, error) {
	c, err := h.Storage.Clone()
	if err != nil {
		return nil, err
	}
	return &fakeHandle{Storage: c, fake: h.fake, path: h.path, readOnly: h.readOnly}, nil
}

func (h *fakeHandle) Close() error {
	h.fake.record("close %s", h.path)
	return h.Storage.Close()
}

func (h *fakeHandle) Sync() error {
	h.fake.record("sync %s", h.path)
	return h.Storage.Sync()
}

func (h *fakeHandle) PreWriteChecks() error {
	h.fake.record("prewrite %s", h.path)
	if h.fake.PreWriteErr != nil {
		return h.fake.PreWriteErr
	}
	return probeWrite(h)
}

func (h *fakeHandle) Unlock() error {
	h.fake.record("unlock %s", h.path)
	return nil
}

func (h *fakeHandle) RequiresAlignment() bool {
	return h.fake.Aligned
}

func (h *fakeHandle) TranslateWriteError(err error) error {
	return translateWriteError(err)
}
