package partition

import (
	"testing"

	"github.com/diskfs/go-diskfs/partition/gpt"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		start, end uint64
		offset     int64
		size       int64
	}{
		{2048, 4095, 2048 * 512, 2047 * 512},
		{100, 100, 100 * 512, 0},
		{200, 100, 200 * 512, 0},
	}
	for _, tt := range tests {
		d := describe(&gpt.Partition{Start: tt.start, End: tt.end, GUID: "ABC"}, 512)
		if d.Offset != tt.offset || d.Size != tt.size {
			t.Errorf("%d-%d: offset %d size %d instead of %d, %d", tt.start, tt.end, d.Offset, d.Size, tt.offset, tt.size)
		}
		if d.UUID != "abc" {
			t.Errorf("UUID %s was not lower-cased", d.UUID)
		}
	}
}
