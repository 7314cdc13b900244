package header

import (
	"errors"
	"fmt"

	"github.com/golemfactory/golem-imager/backend"
	log "github.com/sirupsen/logrus"
)

// ReadAt reads and decodes the header stored at lba.
func ReadAt(s backend.Storage, lba uint64) (*Header, error) {
	b := make([]byte, SectorSize)
	if _, err := backend.ReadFullAt(s, b, int64(lba)*SectorSize); err != nil {
		return nil, fmt.Errorf("could not read GPT header at LBA %d of %s: %w", lba, backend.Name(s), err)
	}
	return Decode(b)
}

// ReadPrimary reads the header at LBA 1.
func ReadPrimary(s backend.Storage) (*Header, error) {
	return ReadAt(s, PrimaryLBA)
}

func write(s backend.Storage, h *Header, lba uint64) error {
	if err := backend.WriteFullAt(s, h.Bytes(), int64(lba)*SectorSize); err != nil {
		return fmt.Errorf("could not write GPT header at LBA %d of %s: %w", lba, backend.Name(s), err)
	}
	return nil
}

// Report is the outcome of Repair.
type Report struct {
	Before *Header
	// After is the header as written, or as it would be written on a dry run;
	// nil when nothing needed repair
	After       *Header
	NeedsRepair bool
	Repaired    bool
}

// Repair points the primary header's partition entries LBA at target, leaving
// every other byte of the header alone apart from the CRC. On a dry run the
// device is not written. The backup header is not touched.
func Repair(s backend.Storage, target uint64, dryRun bool) (*Report, error) {
	if target < DefaultEntriesLBA {
		return nil, fmt.Errorf("target LBA %d overlaps the protective MBR or header: %w", target, backend.ErrInvalidInput)
	}
	h, err := ReadPrimary(s)
	if err != nil {
		return nil, err
	}
	r := &Report{Before: h}
	l := logger.WithFields(log.Fields{
		"device":      backend.Name(s),
		"entries_lba": h.EntriesLBA,
		"target_lba":  target,
	})
	if h.CurrentLBA != PrimaryLBA {
		l.WithField("current_lba", h.CurrentLBA).Warn("primary header does not point at itself")
	}
	if h.EntriesLBA == target {
		l.Info("partition entries LBA already correct")
		return r, nil
	}
	r.NeedsRepair = true
	r.After = h.Clone()
	r.After.SetEntriesLBA(target)
	if dryRun {
		l.Info("dry run, header not written")
		return r, nil
	}
	if err := write(s, r.After, PrimaryLBA); err != nil {
		return r, err
	}
	if err := s.Sync(); err != nil {
		return r, fmt.Errorf("could not sync %s: %w", backend.Name(s), err)
	}
	check, err := ReadPrimary(s)
	if err != nil {
		return r, fmt.Errorf("could not read back repaired header: %w", err)
	}
	if check.EntriesLBA != target || !check.Valid() {
		return r, fmt.Errorf("repaired header did not persist on %s, entries LBA reads %d", backend.Name(s), check.EntriesLBA)
	}
	r.Repaired = true
	l.WithFields(log.Fields{
		"old_crc": fmt.Sprintf("%08X", h.CRC),
		"new_crc": fmt.Sprintf("%08X", r.After.CRC),
	}).Info("GPT header repaired")
	return r, nil
}

// RelocateBackup moves the backup header and partition entries to the last
// LBA of s, for images written to a device larger than the image. It returns
// false when s holds no GPT or the backup is already in place.
func RelocateBackup(s backend.Storage) (bool, error) {
	size, err := s.Size()
	if err != nil {
		return false, fmt.Errorf("could not get size of %s: %w", backend.Name(s), err)
	}
	sectors := uint64(size) / SectorSize
	if sectors < 2*EntriesSectors+3 {
		return false, fmt.Errorf("device %s of %d bytes is too small for a GPT: %w", backend.Name(s), size, backend.ErrInvalidInput)
	}
	primary, err := ReadPrimary(s)
	if err != nil {
		if errors.Is(err, ErrNoSignature) {
			logger.WithField("device", backend.Name(s)).Info("no GPT on device, backup header left alone")
			return false, nil
		}
		return false, err
	}
	expected := sectors - 1
	l := logger.WithFields(log.Fields{
		"device":   backend.Name(s),
		"current":  primary.BackupLBA,
		"expected": expected,
	})
	if primary.BackupLBA == expected {
		l.Debug("backup GPT header already at the last LBA")
		return false, nil
	}
	l.Info("moving backup GPT header to the end of the device")

	count := primary.EntriesSectorCount()
	entriesLBA := expected - count

	backup, err := ReadAt(s, primary.BackupLBA)
	if err != nil {
		l.WithError(err).Warn("old backup header unreadable, rebuilding it from the primary")
		backup = primary.Clone()
		backup.SetBackupLBA(PrimaryLBA)
	}
	backup.SetCurrentLBA(expected)
	backup.SetEntriesLBA(entriesLBA)
	if err := write(s, backup, expected); err != nil {
		return false, err
	}

	primary.SetBackupLBA(expected)
	if err := write(s, primary, PrimaryLBA); err != nil {
		return false, err
	}

	entries := make([]byte, count*SectorSize)
	if _, err := backend.ReadFullAt(s, entries, int64(primary.EntriesLBA)*SectorSize); err != nil {
		return false, fmt.Errorf("could not read partition entries of %s: %w", backend.Name(s), err)
	}
	if err := backend.WriteFullAt(s, entries, int64(entriesLBA)*SectorSize); err != nil {
		return false, fmt.Errorf("could not write backup partition entries of %s: %w", backend.Name(s), err)
	}
	if err := s.Sync(); err != nil {
		return false, fmt.Errorf("could not sync %s: %w", backend.Name(s), err)
	}
	l.WithField("entries_lba", entriesLBA).Info("backup GPT header relocated")
	return true, nil
}
