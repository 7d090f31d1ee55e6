package coordinator

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/vncbridge/rfbcache/coordproto"
)

// writeResult is the single-slot rendezvous value a slave's reader
// goroutine delivers to a blocked [slaveCoordinator.RequestWrite] call. A
// buffered channel of size 1 plays the role of §4.G's
// ack-received-flag + condition-variable pair: exactly one outstanding
// write per slave, exactly one slot needed.
type writeResult struct {
	entry coordproto.WireIndexEntry
	ok    bool
}

type slaveCoordinator struct {
	sockPath string
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conn   net.Conn

	runningMu sync.Mutex
	running   bool

	// writeMu serializes RequestWrite calls: the wire protocol supports at
	// most one outstanding write per slave connection.
	writeMu sync.Mutex
	pending chan writeResult

	statsMu sync.Mutex
	stats   Stats
}

func newSlave(sockPath string, opts Options) *slaveCoordinator {
	return &slaveCoordinator{
		sockPath: sockPath,
		opts:     opts,
		pending:  make(chan writeResult, 1),
	}
}

func (s *slaveCoordinator) Role() Role { return RoleSlave }

// Start connects to the master with a bounded timeout. On failure it
// returns the error without retrying, per §4.G: a slave that cannot
// connect stays a Slave in Role() but every operation fails, leaving
// callers to fall back to standalone behavior themselves.
func (s *slaveCoordinator) Start() error {
	conn, err := net.DialTimeout("unix", s.sockPath, s.opts.ConnectTimeout)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.runningMu.Lock()
	s.running = true
	s.runningMu.Unlock()

	s.statsMu.Lock()
	s.stats.Role = RoleSlave
	s.stats.StartedAt = time.Now()
	s.statsMu.Unlock()

	hello := coordproto.HelloPayload{ProtocolVersion: coordproto.ProtocolVersion, SlavePID: uint32(os.Getpid())}
	if _, werr := conn.Write(coordproto.EncodeMessage(coordproto.MsgHello, hello.Encode())); werr != nil {
		s.handleMasterExit()

		return werr
	}

	s.wg.Add(1)
	go s.readLoop()

	return nil
}

// readLoop polls the socket with the same 100ms cadence as the master's
// accept loop, translated the same way: a refreshed read deadline instead
// of raw poll(2).
func (s *slaveCoordinator) readLoop() {
	defer s.wg.Done()

	buf := make([]byte, 4096)
	var recvBuf []byte

	for {
		if s.ctx.Err() != nil {
			return
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PollInterval))

		n, err := s.conn.Read(buf)
		if n > 0 {
			recvBuf = append(recvBuf, buf[:n]...)

			var ok bool
			recvBuf, ok = s.drainMessages(recvBuf)
			if !ok {
				s.handleMasterExit()

				return
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			s.handleMasterExit()

			return
		}
	}
}

func (s *slaveCoordinator) drainMessages(recvBuf []byte) ([]byte, bool) {
	for {
		msg, consumed, err := coordproto.ParseMessage(recvBuf)
		if err != nil {
			s.opts.Logger.Error("coordinator: malformed message from master", err, nil)

			return recvBuf, false
		}

		if consumed == 0 {
			return recvBuf, true
		}

		recvBuf = recvBuf[consumed:]

		s.dispatch(msg)
	}
}

func (s *slaveCoordinator) dispatch(msg coordproto.Message) {
	switch msg.Type {
	case coordproto.MsgWelcome:
		welcome, err := coordproto.DecodeWelcomePayload(msg.Payload)
		if err == nil {
			s.opts.IndexUpdateCallback(welcome.Entries)
		}
	case coordproto.MsgIndexUpdate:
		update, err := coordproto.DecodeIndexUpdatePayload(msg.Payload)
		if err == nil {
			s.opts.IndexUpdateCallback(update.Entries)

			s.statsMu.Lock()
			s.stats.IndexUpdatesRecv++
			s.statsMu.Unlock()
		}
	case coordproto.MsgWriteAck:
		ack, err := coordproto.DecodeWriteAckPayload(msg.Payload)
		if err == nil {
			s.deliver(writeResult{entry: ack.Entry, ok: true})
		}
	case coordproto.MsgWriteNack:
		s.deliver(writeResult{ok: false})
	case coordproto.MsgMasterExit:
		s.handleMasterExit()
	case coordproto.MsgPong:
		// no-op
	}
}

// deliver hands a write result to a waiting RequestWrite, non-blocking:
// if nothing is waiting (a spurious/duplicate ack), it is dropped rather
// than stalling the reader goroutine.
func (s *slaveCoordinator) deliver(r writeResult) {
	select {
	case s.pending <- r:
	default:
	}
}

// handleMasterExit closes the socket, unblocks any pending write with a
// failure, and marks the slave not-running. It does not attempt
// re-election: per §4.G this design treats a slave whose master exits as
// having permanently fallen back to standalone-equivalent behavior.
func (s *slaveCoordinator) handleMasterExit() {
	s.runningMu.Lock()
	wasRunning := s.running
	s.running = false
	s.runningMu.Unlock()

	if !wasRunning {
		return
	}

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.connMu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	s.deliver(writeResult{ok: false})
}

// RequestWrite sends a WRITE_REQ and blocks for at most
// opts.WriteRequestTimeout waiting for WRITE_ACK or WRITE_NACK.
func (s *slaveCoordinator) RequestWrite(entry coordproto.WireIndexEntry, payload []byte) (coordproto.WireIndexEntry, bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.runningMu.Lock()
	running := s.running
	s.runningMu.Unlock()

	if !running {
		return coordproto.WireIndexEntry{}, false
	}

	// Drain any stale result left by a previous, already-timed-out request.
	select {
	case <-s.pending:
	default:
	}

	req := coordproto.WriteReqPayload{Entry: entry, Payload: payload}

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		return coordproto.WireIndexEntry{}, false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteRequestTimeout))
	if _, err := conn.Write(coordproto.EncodeMessage(coordproto.MsgWriteReq, req.Encode())); err != nil {
		return coordproto.WireIndexEntry{}, false
	}

	select {
	case result := <-s.pending:
		if result.ok {
			s.statsMu.Lock()
			s.stats.WriteRequestsSent++
			s.statsMu.Unlock()
		}

		return result.entry, result.ok
	case <-time.After(s.opts.WriteRequestTimeout):
		return coordproto.WireIndexEntry{}, false
	}
}

func (s *slaveCoordinator) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	return s.stats
}

// Stop sends SLAVE_EXIT on a best-effort basis and tears down the reader
// goroutine and connection. Idempotent.
func (s *slaveCoordinator) Stop() error {
	s.runningMu.Lock()
	wasRunning := s.running
	s.running = false
	s.runningMu.Unlock()

	if !wasRunning {
		return nil
	}

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.PollInterval))
		_, _ = conn.Write(coordproto.EncodeMessage(coordproto.MsgSlaveExit, nil))
	}

	if s.cancel != nil {
		s.cancel()
	}

	if conn != nil {
		_ = conn.Close()
	}

	s.wg.Wait()

	return nil
}
