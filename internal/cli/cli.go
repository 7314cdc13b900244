// Package cli holds what the command-line tools share: logging setup, device
// opening and error reporting with remediation hints.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golemfactory/golem-imager/device"
	"github.com/golemfactory/golem-imager/partition"
	log "github.com/sirupsen/logrus"
)

// SetupLogging sends log output to w at info level, or debug when verbose.
func SetupLogging(w io.Writer, verbose bool) {
	log.SetOutput(w)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// Open opens path through m, falling back to device.Default when m is nil.
func Open(ctx context.Context, m device.Manager, path string, opts device.Options) (device.Handle, error) {
	if path == "" {
		return nil, errors.New("no device given")
	}
	if m == nil {
		m = device.Default()
	}
	return m.Open(ctx, path, opts)
}

// Remedies returns the hints carried by err, if any.
func Remedies(err error) []string {
	var (
		oe *device.OpenError
		ie *device.IOError
		pe *partition.GPTParseError
	)
	switch {
	case errors.As(err, &ie):
		return ie.Remedy
	case errors.As(err, &pe):
		return pe.Guidance()
	case errors.As(err, &oe):
		switch oe.Kind {
		case device.AccessDenied:
			return []string{
				"Make sure you're running the tool with sudo or as Administrator",
				"Make sure you have read permissions for the disk",
			}
		case device.DeviceBusy:
			return []string{"Close any applications that might be using the disk"}
		case device.NotFound, device.InvalidPath:
			return []string{
				"Check that the disk path exists",
				"On Windows use \\\\.\\PhysicalDriveN, a drive letter such as E: or just the disk number",
			}
		}
	}
	return nil
}

// PrintError writes err and its hints to w.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if r := Remedies(err); len(r) > 0 {
		fmt.Fprintln(w, "Troubleshooting tips:")
		for _, line := range r {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}
}

// Confirm asks question on out and reads the answer from in. Only y or yes,
// in any case, is a yes.
func Confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/N): ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Size formats n bytes for humans.
func Size(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
