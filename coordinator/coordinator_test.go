package coordinator

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/vncbridge/rfbcache/coordproto"
	"github.com/vncbridge/rfbcache/internal/fsx"
)

func realFS(t *testing.T) fsx.FS {
	t.Helper()

	return fsx.NewReal()
}

// waitFor polls cond every few milliseconds until it returns true or the
// overall budget expires, failing the test on timeout. Coordinator
// goroutines (accept loop, reader loop) react within one PollInterval, so a
// short poll budget is enough without sleeping a fixed duration.
func waitFor(t *testing.T, budget time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(budget)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", budget)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func fastOptions() Options {
	return Options{
		PollInterval:        10 * time.Millisecond,
		ConnectTimeout:      500 * time.Millisecond,
		WriteRequestTimeout: 500 * time.Millisecond,
	}
}

// entryCollector gathers IndexUpdateCallback deliveries from a background
// reader goroutine while the test goroutine polls it via waitFor.
type entryCollector struct {
	mu      sync.Mutex
	batches [][]coordproto.WireIndexEntry
}

func (c *entryCollector) add(entries []coordproto.WireIndexEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batches = append(c.batches, entries)
}

func (c *entryCollector) snapshot() [][]coordproto.WireIndexEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]coordproto.WireIndexEntry, len(c.batches))
	copy(out, c.batches)

	return out
}

func (c *entryCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.batches)
}

func (c *entryCollector) hasCacheID(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, batch := range c.batches {
		for _, e := range batch {
			if e.CacheID == id {
				return true
			}
		}
	}

	return false
}

func Test_Create_NoContention_BecomesMaster(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	coord, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer coord.Stop()

	if coord.Role() != RoleMaster {
		t.Fatalf("Role() = %s, want master", coord.Role())
	}

	if err := coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func Test_Create_Contended_AliveHolder_BecomesSlave(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	master, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create (master): %v", err)
	}
	defer master.Stop()

	if err := master.Start(); err != nil {
		t.Fatalf("master.Start: %v", err)
	}

	second, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create (second): %v", err)
	}
	defer second.Stop()

	if second.Role() != RoleSlave {
		t.Fatalf("Role() = %s, want slave", second.Role())
	}
}

func Test_Create_DirCreationFails_BecomesStandalone(t *testing.T) {
	t.Parallel()

	// A regular file can't be MkdirAll'd into: using its path as the cache
	// dir forces the "ensure dir exists" step to fail.
	parent := t.TempDir()
	blocker := parent + "/blocker"
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	coord, err := Create(blocker+"/cachedir", fastOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer coord.Stop()

	if coord.Role() != RoleStandalone {
		t.Fatalf("Role() = %s, want standalone", coord.Role())
	}
}

func Test_MasterSlave_HandshakeDeliversWelcome(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var collector entryCollector

	master, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create (master): %v", err)
	}
	defer master.Stop()
	if err := master.Start(); err != nil {
		t.Fatalf("master.Start: %v", err)
	}

	slaveOpts := fastOptions()
	slaveOpts.IndexUpdateCallback = collector.add

	slave, err := Create(dir, slaveOpts)
	if err != nil {
		t.Fatalf("Create (slave): %v", err)
	}
	defer slave.Stop()

	if slave.Role() != RoleSlave {
		t.Fatalf("Role() = %s, want slave", slave.Role())
	}

	if err := slave.Start(); err != nil {
		t.Fatalf("slave.Start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return collector.len() > 0 })

	first := collector.snapshot()[0]
	if len(first) != 0 {
		t.Fatalf("welcome entries = %v, want empty snapshot (fresh master)", first)
	}
}

func Test_MasterSlave_WriteRequestRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	masterOpts := fastOptions()
	masterOpts.WriteRequestCallback = func(entry coordproto.WireIndexEntry, payload []byte) (coordproto.WireIndexEntry, bool) {
		entry.ShardID = 7
		entry.Offset = 1234
		entry.Length = uint32(len(payload))

		return entry, true
	}

	master, err := Create(dir, masterOpts)
	if err != nil {
		t.Fatalf("Create (master): %v", err)
	}
	defer master.Stop()
	if err := master.Start(); err != nil {
		t.Fatalf("master.Start: %v", err)
	}

	slave, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create (slave): %v", err)
	}
	defer slave.Stop()
	if err := slave.Start(); err != nil {
		t.Fatalf("slave.Start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return master.Stats().ConnectedSlaves == 1 })

	req := coordproto.WireIndexEntry{CacheID: 99, Width: 128, Height: 128}
	payload := []byte("hello cache tile")

	got, ok := slave.RequestWrite(req, payload)
	if !ok {
		t.Fatalf("RequestWrite failed, want success")
	}

	if got.CacheID != req.CacheID || got.ShardID != 7 || got.Offset != 1234 || got.Length != uint32(len(payload)) {
		t.Fatalf("got entry %+v, want filled-in shard/offset/length for cache id %d", got, req.CacheID)
	}

	stats := master.Stats()
	if stats.WriteRequestsRecv != 1 {
		t.Fatalf("master WriteRequestsRecv = %d, want 1", stats.WriteRequestsRecv)
	}
}

func Test_MasterSlave_WriteRequestNack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	masterOpts := fastOptions()
	masterOpts.WriteRequestCallback = func(entry coordproto.WireIndexEntry, _ []byte) (coordproto.WireIndexEntry, bool) {
		return entry, false
	}

	master, err := Create(dir, masterOpts)
	if err != nil {
		t.Fatalf("Create (master): %v", err)
	}
	defer master.Stop()
	if err := master.Start(); err != nil {
		t.Fatalf("master.Start: %v", err)
	}

	slave, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create (slave): %v", err)
	}
	defer slave.Stop()
	if err := slave.Start(); err != nil {
		t.Fatalf("slave.Start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return master.Stats().ConnectedSlaves == 1 })

	_, ok := slave.RequestWrite(coordproto.WireIndexEntry{CacheID: 1}, []byte("x"))
	if ok {
		t.Fatalf("RequestWrite succeeded, want nack-induced failure")
	}
}

func Test_MasterSlave_BroadcastReachesOtherSlaves(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	masterOpts := fastOptions()
	masterOpts.WriteRequestCallback = func(entry coordproto.WireIndexEntry, _ []byte) (coordproto.WireIndexEntry, bool) {
		return entry, true
	}

	master, err := Create(dir, masterOpts)
	if err != nil {
		t.Fatalf("Create (master): %v", err)
	}
	defer master.Stop()
	if err := master.Start(); err != nil {
		t.Fatalf("master.Start: %v", err)
	}

	writerSlave, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create (writer slave): %v", err)
	}
	defer writerSlave.Stop()
	if err := writerSlave.Start(); err != nil {
		t.Fatalf("writerSlave.Start: %v", err)
	}

	var collector entryCollector
	observerOpts := fastOptions()
	observerOpts.IndexUpdateCallback = collector.add

	observerSlave, err := Create(dir, observerOpts)
	if err != nil {
		t.Fatalf("Create (observer slave): %v", err)
	}
	defer observerSlave.Stop()
	if err := observerSlave.Start(); err != nil {
		t.Fatalf("observerSlave.Start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return master.Stats().ConnectedSlaves == 2 })

	_, ok := writerSlave.RequestWrite(coordproto.WireIndexEntry{CacheID: 55}, []byte("payload"))
	if !ok {
		t.Fatalf("RequestWrite failed")
	}

	waitFor(t, time.Second, func() bool { return collector.hasCacheID(55) })
}

func Test_MasterExit_SlaveStopsServingWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	master, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create (master): %v", err)
	}
	if err := master.Start(); err != nil {
		t.Fatalf("master.Start: %v", err)
	}

	slave, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create (slave): %v", err)
	}
	defer slave.Stop()
	if err := slave.Start(); err != nil {
		t.Fatalf("slave.Start: %v", err)
	}

	waitFor(t, time.Second, func() bool { return master.Stats().ConnectedSlaves == 1 })

	if err := master.Stop(); err != nil {
		t.Fatalf("master.Stop: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		_, ok := slave.RequestWrite(coordproto.WireIndexEntry{CacheID: 1}, []byte("x"))
		return !ok
	})
}

func Test_Standalone_EverythingIsANoOp(t *testing.T) {
	t.Parallel()

	s := newStandalone(Options{}.withDefaults())

	if s.Role() != RoleStandalone {
		t.Fatalf("Role() = %s, want standalone", s.Role())
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, ok := s.RequestWrite(coordproto.WireIndexEntry{CacheID: 1}, nil); ok {
		t.Fatalf("RequestWrite succeeded, want always-false")
	}

	if got := s.Stats().Role; got != RoleStandalone {
		t.Fatalf("Stats().Role = %s, want standalone", got)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func Test_Coordinator_Stats_UptimeNonZeroAfterStart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	coord, err := Create(dir, fastOptions())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer coord.Stop()

	if err := coord.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if coord.Stats().Uptime() <= 0 {
		t.Fatalf("Uptime() = %s, want positive", coord.Stats().Uptime())
	}
}

func Test_Role_String(t *testing.T) {
	t.Parallel()

	cases := map[Role]string{
		RoleMaster:        "master",
		RoleSlave:         "slave",
		RoleStandalone:    "standalone",
		RoleUninitialized: "uninitialized",
	}

	for role, want := range cases {
		if got := role.String(); got != want {
			t.Errorf("Role(%d).String() = %q, want %q", role, got, want)
		}
	}
}
