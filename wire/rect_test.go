package wire

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vncbridge/rfbcache/pixel"
)

func Test_RectHeader_RoundTrips(t *testing.T) {
	t.Parallel()

	h := RectHeaderFor(pixel.RectFromSize(10, 20, 128, 64), EncodingSessionCacheRef)

	buf := h.Encode(nil)
	if len(buf) != rectHeaderSize {
		t.Fatalf("encoded length = %d, want %d", len(buf), rectHeaderSize)
	}

	got, n, err := DecodeRectHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != rectHeaderSize {
		t.Fatalf("consumed = %d, want %d", n, rectHeaderSize)
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func Test_SessionRef_RoundTrips_At20Bytes(t *testing.T) {
	t.Parallel()

	ref := SessionRef{CacheID: 0xDEADBEEF}

	body, err := ref.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header := RectHeaderFor(pixel.RectFromSize(0, 0, 64, 64), ref.Type())
	total := len(header.Encode(nil)) + len(body)
	if total != 20 {
		t.Fatalf("total wire size = %d, want 20", total)
	}

	got, err := DecodeSessionRef(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ref {
		t.Fatalf("got %+v, want %+v", got, ref)
	}
}

func Test_PersistentRef_RoundTrips_At20Bytes(t *testing.T) {
	t.Parallel()

	ref := PersistentRef{CacheID: 12345}

	body, err := ref.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header := RectHeaderFor(pixel.RectFromSize(0, 0, 1, 1), ref.Type())
	if total := len(header.Encode(nil)) + len(body); total != 20 {
		t.Fatalf("total wire size = %d, want 20", total)
	}

	got, err := DecodePersistentRef(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ref {
		t.Fatalf("got %+v, want %+v", got, ref)
	}
}

func Test_SessionInit_RoundTrips_WithOverhead24PlusPayload(t *testing.T) {
	t.Parallel()

	init := SessionInit{CacheID: 99, InnerEncoding: 7, Payload: []byte("compressed-pixels")}

	body, err := init.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header := RectHeaderFor(pixel.RectFromSize(0, 0, 8, 8), init.Type())
	total := len(header.Encode(nil)) + len(body)
	if total != 24+len(init.Payload) {
		t.Fatalf("total wire size = %d, want %d", total, 24+len(init.Payload))
	}

	got, err := DecodeSessionInit(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(init, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func Test_PersistentInit_RoundTrips_WithOverhead24PlusPayload(t *testing.T) {
	t.Parallel()

	init := PersistentInit{CacheID: 7, InnerEncoding: 16, Payload: []byte("zrle-bytes")}

	body, err := init.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header := RectHeaderFor(pixel.RectFromSize(0, 0, 8, 8), init.Type())
	total := len(header.Encode(nil)) + len(body)
	if total != 24+len(init.Payload) {
		t.Fatalf("total wire size = %d, want %d", total, 24+len(init.Payload))
	}

	got, err := DecodePersistentInit(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(init, got); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func Test_SessionInit_RoundTrips_EmptyPayload(t *testing.T) {
	t.Parallel()

	init := SessionInit{CacheID: 1, InnerEncoding: 0}

	got, err := DecodeSessionInit(mustMarshal(t, init))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CacheID != init.CacheID || got.InnerEncoding != init.InnerEncoding || len(got.Payload) != 0 {
		t.Fatalf("got %+v, want %+v with empty payload", got, init)
	}
}

func Test_DecodeSessionRef_RejectsWrongSize(t *testing.T) {
	t.Parallel()

	if _, err := DecodeSessionRef([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error for a short reference body")
	}
}

func Test_DecodeSessionInit_RejectsShortBody(t *testing.T) {
	t.Parallel()

	if _, err := DecodeSessionInit([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error for a short init body")
	}
}

func Test_BatchEntries_SplitsIntoChunks(t *testing.T) {
	t.Parallel()

	items := make([]int, 250)
	for i := range items {
		items[i] = i
	}

	batches := BatchEntries(items, 100)
	if len(batches) != 3 {
		t.Fatalf("len(batches) = %d, want 3", len(batches))
	}
	if len(batches[0]) != 100 || len(batches[1]) != 100 || len(batches[2]) != 50 {
		t.Fatalf("batch sizes = %d,%d,%d, want 100,100,50", len(batches[0]), len(batches[1]), len(batches[2]))
	}

	var flat []int
	for _, b := range batches {
		flat = append(flat, b...)
	}
	if diff := cmp.Diff(items, flat); diff != "" {
		t.Fatalf("batches don't reconstruct original order (-want +got):\n%s", diff)
	}
}

func Test_BatchEntries_DefaultSizeWhenNonPositive(t *testing.T) {
	t.Parallel()

	items := make([]int, 150)
	batches := BatchEntries(items, 0)
	if len(batches) != 2 || len(batches[0]) != 100 || len(batches[1]) != 50 {
		t.Fatalf("unexpected batching with default size: %d batches", len(batches))
	}
}

func Test_BatchEntries_EmptyInput(t *testing.T) {
	t.Parallel()

	if got := BatchEntries[int](nil, 10); got != nil {
		t.Fatalf("BatchEntries(nil) = %v, want nil", got)
	}
}

func mustMarshal(t *testing.T, e Encoding) []byte {
	t.Helper()

	body, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	return body
}
