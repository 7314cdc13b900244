package partition

import (
	"fmt"
	"strings"
)

// GPTParseError is returned when no GPT could be read from a device, neither
// directly nor through the aligned fallback.
type GPTParseError struct {
	Path     string
	Err      error
	Fallback error
}

func (e *GPTParseError) Error() string {
	msg := fmt.Sprintf("failed to parse GPT partition table on %s: %v", e.Path, e.Err)
	if e.Fallback != nil {
		msg += fmt.Sprintf(" (aligned retry: %v)", e.Fallback)
	}
	return msg
}

func (e *GPTParseError) Unwrap() error {
	return e.Err
}

// Guidance lists what the user can do about an unreadable partition table.
func (e *GPTParseError) Guidance() []string {
	return []string{
		"Make sure the device holds a GPT partitioned image and is fully connected",
		"The partition table may be corrupt, writing the image again usually fixes it",
		"golem-gpt-repair --dry-run shows what is wrong with the primary header",
	}
}

func NewGPTParseError(path string, err, fallback error) *GPTParseError {
	return &GPTParseError{Path: path, Err: err, Fallback: fallback}
}

// NotFoundError is returned when no partition carries the requested UUID.
type NotFoundError struct {
	UUID  string
	Found []string
}

func (e *NotFoundError) Error() string {
	if len(e.Found) == 0 {
		return fmt.Sprintf("partition with UUID %s not found, the partition table is empty", e.UUID)
	}
	return fmt.Sprintf("partition with UUID %s not found, available partitions: %s", e.UUID, strings.Join(e.Found, ", "))
}

func NewNotFoundError(uuid string, found []string) *NotFoundError {
	return &NotFoundError{UUID: uuid, Found: found}
}
