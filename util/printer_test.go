package util

import (
	"reflect"
	"strings"
	"testing"
)

func TestDumpSector(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
		opts DumpOptions
		want string
	}{
		{
			"header with ascii",
			[]byte("EFI PART\x00\x00\x01\x00\x5c\x00\x00\x00ABC"),
			DumpOptions{Base: 512, ASCII: true},
			"00000200:  45 46 49 20 50 41 52 54  00 00 01 00 5c 00 00 00  EFI PART....\\...\n" +
				"00000210:  41 42 43                                          ABC             \n",
		},
		{
			"one group per row",
			[]byte{1, 2, 3, 4, 5, 6, 7, 8, 9},
			DumpOptions{BytesPerRow: 8},
			"00000000:  01 02 03 04 05 06 07 08\n" +
				"00000008:  09" + strings.Repeat(" ", 21) + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DumpSector(tt.b, tt.opts); got != tt.want {
				t.Errorf("dump was\n%q\ninstead of\n%q", got, tt.want)
			}
		})
	}
}

func TestDumpChanges(t *testing.T) {
	before := make([]byte, 64)
	after := make([]byte, 64)
	after[40] = 3
	out := DumpChanges(before, after, 0)
	if strings.Count(out, "\n") != 4 {
		t.Errorf("expected one row per side plus titles, got\n%s", out)
	}
	if !strings.Contains(out, "00000020:") || strings.Contains(out, "00000000:") {
		t.Errorf("wrong rows in\n%s", out)
	}
	if DumpChanges(before, before, 0) != "" {
		t.Errorf("identical sectors produced a dump")
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		a, b []byte
		want []int
	}{
		{[]byte{1, 2, 3}, []byte{1, 2, 3}, nil},
		{[]byte{1, 2, 3}, []byte{1, 0, 3}, []int{1}},
		{[]byte{1}, []byte{1, 2}, []int{1}},
	}
	for _, tt := range tests {
		if got := Diff(tt.a, tt.b); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Diff(%v, %v) = %v instead of %v", tt.a, tt.b, got, tt.want)
		}
	}
}
