package transfer

import (
	"hash/adler32"
	"testing"
)

func TestChunkChecksumMatchesStdlibAdler32(t *testing.T) {
	data := []byte("feisync chunk payload")
	want := adler32.Checksum(data)

	if got := chunkChecksum(data); got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestChunkChecksumDiffersOnDifferentData(t *testing.T) {
	a := chunkChecksum([]byte("chunk-a"))
	b := chunkChecksum([]byte("chunk-b"))
	if a == b {
		t.Fatalf("expected different checksums for different payloads")
	}
}
