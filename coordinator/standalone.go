package coordinator

import "github.com/vncbridge/rfbcache/coordproto"

// standaloneCoordinator is used when no coordination with other processes
// is possible (or dir creation/locking failed outright). Every operation
// is a benign no-op.
type standaloneCoordinator struct {
	opts Options
}

func newStandalone(opts Options) *standaloneCoordinator {
	return &standaloneCoordinator{opts: opts}
}

func (s *standaloneCoordinator) Role() Role { return RoleStandalone }

func (s *standaloneCoordinator) Start() error { return nil }

func (s *standaloneCoordinator) Stop() error { return nil }

func (s *standaloneCoordinator) RequestWrite(coordproto.WireIndexEntry, []byte) (coordproto.WireIndexEntry, bool) {
	return coordproto.WireIndexEntry{}, false
}

func (s *standaloneCoordinator) Stats() Stats {
	return Stats{Role: RoleStandalone}
}
