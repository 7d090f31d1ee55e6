// Package coordinator implements the cache coordinator (spec §4.G): role
// election between viewer processes sharing a persistent cache directory,
// and the synchronous write-request / index-broadcast protocol that keeps
// their persistent indexes consistent.
//
// Exactly one process per cache directory becomes Master at a time, elected
// via an advisory file lock plus stale-PID detection. Every other process
// in that directory becomes a Slave of the current master, or Standalone
// if no coordination is possible. The role is decided once, at [Create],
// and never changes afterward — a slave whose master exits does not
// attempt re-election (see §9); callers are expected to treat it as having
// fallen back to standalone behavior.
package coordinator

import (
	"time"

	"github.com/vncbridge/rfbcache/coordproto"
	"github.com/vncbridge/rfbcache/internal/obslog"
)

// Role is the coordinator's position in a cache directory's master/slave
// topology, fixed at creation time.
type Role int

const (
	RoleUninitialized Role = iota
	RoleMaster
	RoleSlave
	RoleStandalone
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	case RoleStandalone:
		return "standalone"
	default:
		return "uninitialized"
	}
}

// Timing constants from spec §4.G/§5. Overridable per-instance through
// [Options] for tests; production callers get these defaults.
const (
	DefaultPollInterval        = 100 * time.Millisecond
	DefaultConnectTimeout      = 2000 * time.Millisecond
	DefaultWriteRequestTimeout = 5000 * time.Millisecond
	staleRetryDelay            = 100 * time.Millisecond
)

// WriteRequestCallback is invoked by a master when a slave asks it to
// persist one cache entry. Implementations write the payload to the
// persistent shard, fill in entry's ShardID/Offset, and return the
// completed entry plus true; false indicates the write failed and the
// requester receives a WRITE_NACK.
type WriteRequestCallback func(entry coordproto.WireIndexEntry, payload []byte) (coordproto.WireIndexEntry, bool)

// IndexUpdateCallback is invoked on a slave whenever the master delivers a
// snapshot (WELCOME) or broadcast (INDEX_UPDATE) of persistent entries.
// Implementations feed these into their local view of the shared index —
// see cachequery.PersistentIndex.Learn.
type IndexUpdateCallback func(entries []coordproto.WireIndexEntry)

// Options configures a Coordinator. The zero value is usable: every
// callback defaults to a no-op and every timeout defaults to spec's values.
type Options struct {
	WriteRequestCallback WriteRequestCallback
	IndexUpdateCallback  IndexUpdateCallback

	// ShardID identifies which shard this master writes to, reported to
	// slaves in WELCOME. Callers with a single shard (the common case) can
	// leave this at its zero value; a caller with a real shard allocator
	// should set it explicitly rather than relying on the default.
	ShardID uint32

	PollInterval        time.Duration
	ConnectTimeout      time.Duration
	WriteRequestTimeout time.Duration

	Logger *obslog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.WriteRequestTimeout <= 0 {
		o.WriteRequestTimeout = DefaultWriteRequestTimeout
	}
	if o.WriteRequestCallback == nil {
		o.WriteRequestCallback = func(entry coordproto.WireIndexEntry, _ []byte) (coordproto.WireIndexEntry, bool) {
			return entry, false
		}
	}
	if o.IndexUpdateCallback == nil {
		o.IndexUpdateCallback = func([]coordproto.WireIndexEntry) {}
	}
	if o.Logger == nil {
		o.Logger = obslog.Nop()
	}

	return o
}

// Stats reports a coordinator's aggregate activity, regardless of role.
// Fields irrelevant to the current role stay zero (e.g. ConnectedSlaves on
// a slave, WriteRequestsSent on a master).
type Stats struct {
	Role Role

	ConnectedSlaves       int
	WriteRequestsRecv     uint64
	WriteRequestsSent     uint64
	IndexUpdatesSent      uint64
	IndexUpdatesRecv      uint64
	BytesWrittenForSlaves uint64

	StartedAt time.Time
}

// Uptime returns how long this coordinator has been running. Zero if it
// was never started.
func (s Stats) Uptime() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}

	return time.Since(s.StartedAt)
}

// Coordinator mediates writes and index updates for a persistent cache
// directory. See package doc for the role-determination contract.
type Coordinator interface {
	// Role returns the role fixed at creation time. Never changes.
	Role() Role

	// Start begins the coordinator's background activity: the master's
	// accept loop, or the slave's connection and reader loop. A standalone
	// coordinator's Start always succeeds trivially.
	Start() error

	// Stop releases all resources: sockets, the advisory lock (master),
	// background goroutines. Idempotent.
	Stop() error

	// RequestWrite asks the coordinator to persist one cache entry.
	//
	// On a master, this writes directly via the configured
	// WriteRequestCallback and broadcasts the result. On a slave, this is
	// the synchronous write-request RPC of §4.G: it blocks until the
	// master acks, nacks, or the request times out. On a standalone
	// coordinator, it always fails (false), unconditionally.
	RequestWrite(entry coordproto.WireIndexEntry, payload []byte) (coordproto.WireIndexEntry, bool)

	// Stats returns a snapshot of this coordinator's counters.
	Stats() Stats
}

// layout is the set of canonical paths derived from a cache directory, per
// §4.G step 2.
type layout struct {
	dir      string
	lockPath string
	pidPath  string
	sockPath string
}

func layoutFor(dir string) layout {
	return layout{
		dir:      dir,
		lockPath: dir + "/coord.lock",
		pidPath:  dir + "/coord.pid",
		sockPath: dir + "/coord.sock",
	}
}

