// Package bandwidth tracks byte-exact cache bandwidth accounting.
//
// Every rectangle emitted as a cache reference or cache init is registered
// here so callers can report how much the cache saved versus sending the
// same content the normal way.
package bandwidth

import (
	"fmt"
	"math"

	"github.com/vncbridge/rfbcache/pixel"
)

// Wire overhead, in bytes, of each cache rectangle variant (§4.E). Both the
// session and persistent protocols share these sizes.
const (
	// RefOverheadBytes is the total wire size of a cache reference message:
	// the 12-byte RFB rectangle header plus an 8-byte cache id body.
	RefOverheadBytes = 20

	// InitOverheadBytes is the fixed wire size of a cache init message
	// before its payload: the 12-byte RFB rectangle header plus an 8-byte
	// cache id and a 4-byte inner-encoding code.
	InitOverheadBytes = 24

	// baselineRectHeaderBytes is the presentational "what would a normal
	// rectangle header have cost" baseline used only for alternativeBytes,
	// per §4.A's rationale: it is independent of any encoder's actual
	// compression ratio.
	baselineRectHeaderBytes = 16
)

// Stats holds byte-exact counters for one session's (or shared index's)
// cache protocol usage. The zero value is ready to use.
type Stats struct {
	// CachedRectBytes is the total bytes emitted as cache references.
	CachedRectBytes uint64
	// CachedRectCount is the number of reference messages emitted.
	CachedRectCount uint64
	// CachedRectInitBytes is the total bytes emitted as cache inits
	// (header + payload).
	CachedRectInitBytes uint64
	// CachedRectInitCount is the number of init messages emitted.
	CachedRectInitCount uint64
	// AlternativeBytes is the baseline byte total if every cached
	// rectangle had instead been sent uncompressed via the normal path.
	AlternativeBytes uint64
}

// Reset zeroes all counters, so a caller can replay a sequence of Track
// calls and compare against a fresh run (§8's idempotence property).
func (s *Stats) Reset() {
	*s = Stats{}
}

// TrackContentCacheRef registers a 20-byte session-cache reference for
// rect under pixel format pf.
func TrackContentCacheRef(s *Stats, rect pixel.Rect, pf pixel.Format) {
	trackRef(s, rect, pf)
}

// TrackContentCacheInit registers a session-cache init carrying
// compressedBytes of encoded payload.
func TrackContentCacheInit(s *Stats, compressedBytes uint64) {
	trackInit(s, compressedBytes)
}

// TrackPersistentCacheRef registers a 20-byte persistent-cache reference.
// Identical accounting to [TrackContentCacheRef]: both protocols share the
// same 20-byte reference framing on the wire (§4.E).
func TrackPersistentCacheRef(s *Stats, rect pixel.Rect, pf pixel.Format) {
	trackRef(s, rect, pf)
}

// TrackPersistentCacheInit registers a persistent-cache init. Identical
// accounting to [TrackContentCacheInit].
func TrackPersistentCacheInit(s *Stats, compressedBytes uint64) {
	trackInit(s, compressedBytes)
}

func trackRef(s *Stats, rect pixel.Rect, pf pixel.Format) {
	s.CachedRectBytes += RefOverheadBytes
	s.AlternativeBytes += baselineRectHeaderBytes + uint64(rect.Area())*uint64(pf.BitsPerPixel)/8
	s.CachedRectCount++
}

func trackInit(s *Stats, compressedBytes uint64) {
	s.CachedRectInitBytes += InitOverheadBytes + compressedBytes
	s.AlternativeBytes += baselineRectHeaderBytes + compressedBytes
	s.CachedRectInitCount++
}

// BandwidthSaved returns max(0, AlternativeBytes - used), where used is the
// bytes actually spent on references plus inits.
func (s Stats) BandwidthSaved() uint64 {
	used := s.CachedRectBytes + s.CachedRectInitBytes
	if s.AlternativeBytes <= used {
		return 0
	}

	return s.AlternativeBytes - used
}

// ReductionPercentage returns 100*(alternative-used)/alternative, or 0 if
// AlternativeBytes is zero or the cache used at least as much as the
// baseline would have. The result is always in [0, 100].
func (s Stats) ReductionPercentage() float64 {
	if s.AlternativeBytes == 0 {
		return 0
	}

	used := s.CachedRectBytes + s.CachedRectInitBytes
	if used >= s.AlternativeBytes {
		return 0
	}

	pct := 100 * float64(s.AlternativeBytes-used) / float64(s.AlternativeBytes)

	return math.Min(pct, 100)
}

// FormatSummary returns a one-line human-readable summary, e.g.
// "Cache: 2.3 MiB bandwidth saving (87.5% reduction)".
func (s Stats) FormatSummary(label string) string {
	return fmt.Sprintf("%s: %s bandwidth saving (%.1f%% reduction)",
		label, formatIEC(s.BandwidthSaved()), s.ReductionPercentage())
}

// formatIEC renders a byte count using IEC binary prefixes (KiB, MiB, ...).
func formatIEC(bytes uint64) string {
	const unit = 1024

	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	prefixes := "KMGTPE"

	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), prefixes[exp])
}
