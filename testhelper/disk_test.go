package testhelper

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestGPTImage(t *testing.T) {
	b := GPTImage(t, 8<<20, 512,
		Partition{GUID: "8e01dc62-9fb2-4c9d-811d-77b96b9dbde4", Name: "root", Start: 2048, End: 4095},
		Partition{GUID: "33b921b8-edc5-46a0-8baa-d0b7ad84fc71", Name: "config", Start: 4096, End: 8191},
	)
	if !bytes.Equal(b[512:520], []byte("EFI PART")) {
		t.Fatalf("primary header signature is %q", b[512:520])
	}
	entries := binary.LittleEndian.Uint64(b[512+72:])
	entrySize := binary.LittleEndian.Uint32(b[512+84:])
	for i, want := range []uint64{2048, 4096} {
		e := b[entries*512+uint64(i)*uint64(entrySize):]
		if first := binary.LittleEndian.Uint64(e[32:]); first != want {
			t.Errorf("entry %d starts at LBA %d instead of %d", i, first, want)
		}
	}
}
