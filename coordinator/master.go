package coordinator

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vncbridge/rfbcache/coordproto"
	"github.com/vncbridge/rfbcache/internal/fsx"
)

// masterCoordinator is the single master for a cache directory, holding
// the advisory lock for the lifetime of the role.
type masterCoordinator struct {
	paths layout
	fs    fsx.FS
	lock  *fsx.Lock
	opts  Options

	ln *net.UnixListener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	clientsMu sync.Mutex
	clients   map[net.Conn]*masterClient

	indexMu sync.Mutex
	index   map[uint64]coordproto.WireIndexEntry

	statsMu   sync.Mutex
	stats     Stats
	startOnce sync.Once
	stopOnce  sync.Once

	ackCounter atomic.Uint32
	seqCounter atomic.Uint32
}

// masterClient tracks per-connection framing state on the master side.
type masterClient struct {
	conn net.Conn
	pid  uint32

	writeMu sync.Mutex // serializes writes to conn
	recvBuf []byte
}

func newMaster(paths layout, fs fsx.FS, lock *fsx.Lock, opts Options) *masterCoordinator {
	return &masterCoordinator{
		paths:   paths,
		fs:      fs,
		lock:    lock,
		opts:    opts,
		clients: make(map[net.Conn]*masterClient),
		index:   make(map[uint64]coordproto.WireIndexEntry),
	}
}

func (m *masterCoordinator) Role() Role { return RoleMaster }

// Start removes any leftover socket file (safe: holding the advisory lock
// makes this process the sole legitimate master candidate for dir,
// regardless of why a prior socket file is still present), binds
// coord.sock, and spawns the accept loop.
func (m *masterCoordinator) Start() error {
	var startErr error

	m.startOnce.Do(func() {
		_ = m.fs.Remove(m.paths.sockPath)

		addr, err := net.ResolveUnixAddr("unix", m.paths.sockPath)
		if err != nil {
			startErr = err

			return
		}

		ln, err := net.ListenUnix("unix", addr)
		if err != nil {
			startErr = err

			return
		}

		m.ln = ln
		m.ctx, m.cancel = context.WithCancel(context.Background())

		m.statsMu.Lock()
		m.stats.Role = RoleMaster
		m.stats.StartedAt = time.Now()
		m.statsMu.Unlock()

		m.wg.Add(1)
		go m.acceptLoop()
	})

	return startErr
}

// acceptLoop accepts new connections under a refreshed deadline, the
// idiomatic Go translation of §4.G's "poll loop with POLL_TIMEOUT_MS=100ms"
// server task: net.Listener.Accept with SetDeadline gives the identical
// suspend/cancel/timeout behavior without needing raw poll(2).
func (m *masterCoordinator) acceptLoop() {
	defer m.wg.Done()

	for {
		if m.ctx.Err() != nil {
			return
		}

		_ = m.ln.SetDeadline(time.Now().Add(m.opts.PollInterval))

		conn, err := m.ln.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			if m.ctx.Err() != nil {
				return
			}

			continue
		}

		client := &masterClient{conn: conn}

		m.clientsMu.Lock()
		m.clients[conn] = client
		m.clientsMu.Unlock()

		m.wg.Add(1)
		go m.clientLoop(client)
	}
}

func (m *masterCoordinator) clientLoop(client *masterClient) {
	defer m.wg.Done()
	defer m.dropClient(client)

	buf := make([]byte, 4096)

	for {
		if m.ctx.Err() != nil {
			return
		}

		_ = client.conn.SetReadDeadline(time.Now().Add(m.opts.PollInterval))

		n, err := client.conn.Read(buf)
		if n > 0 {
			client.recvBuf = append(client.recvBuf, buf[:n]...)

			if !m.drainMessages(client) {
				return
			}
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return // EOF or hard error: client disconnected.
		}
	}
}

// drainMessages parses and dispatches every complete message currently in
// client.recvBuf. Returns false if a malformed message was seen, in which
// case the caller must disconnect the client.
func (m *masterCoordinator) drainMessages(client *masterClient) bool {
	for {
		msg, consumed, err := coordproto.ParseMessage(client.recvBuf)
		if err != nil {
			m.opts.Logger.Error("coordinator: malformed message from slave, disconnecting", err, nil)

			return false
		}

		if consumed == 0 {
			return true
		}

		client.recvBuf = client.recvBuf[consumed:]

		m.dispatch(client, msg)
	}
}

func (m *masterCoordinator) dispatch(client *masterClient, msg coordproto.Message) {
	switch msg.Type {
	case coordproto.MsgHello:
		m.handleHello(client, msg.Payload)
	case coordproto.MsgWriteReq:
		m.handleWriteReq(client, msg.Payload)
	case coordproto.MsgQueryIndex:
		m.handleQueryIndex(client, msg.Payload)
	case coordproto.MsgPing:
		m.send(client, coordproto.EncodeMessage(coordproto.MsgPong, nil))
	case coordproto.MsgSlaveExit:
		m.dropClient(client)
	default:
		// Unrecognized-but-well-framed messages are ignored, not fatal.
	}
}

func (m *masterCoordinator) handleHello(client *masterClient, payload []byte) {
	hello, err := coordproto.DecodeHelloPayload(payload)
	if err == nil {
		client.pid = hello.SlavePID
	}

	m.indexMu.Lock()
	entries := make([]coordproto.WireIndexEntry, 0, len(m.index))
	for _, e := range m.index {
		entries = append(entries, e)
	}
	m.indexMu.Unlock()

	welcome := coordproto.WelcomePayload{
		ProtocolVersion: coordproto.ProtocolVersion,
		MasterPID:       uint32(os.Getpid()),
		ShardID:         m.opts.ShardID,
		Entries:         entries,
	}

	m.send(client, coordproto.EncodeMessage(coordproto.MsgWelcome, welcome.Encode()))

	m.statsMu.Lock()
	m.stats.ConnectedSlaves = m.clientCount()
	m.statsMu.Unlock()
}

func (m *masterCoordinator) handleWriteReq(client *masterClient, payload []byte) {
	req, err := coordproto.DecodeWriteReqPayload(payload)
	if err != nil {
		m.opts.Logger.Error("coordinator: malformed WRITE_REQ", err, nil)

		return
	}

	outEntry, ok := m.opts.WriteRequestCallback(req.Entry, req.Payload)

	m.statsMu.Lock()
	m.stats.WriteRequestsRecv++
	if ok {
		m.stats.BytesWrittenForSlaves += uint64(len(req.Payload))
	}
	m.statsMu.Unlock()

	if !ok {
		m.send(client, coordproto.EncodeMessage(coordproto.MsgWriteNack, nil))

		return
	}

	m.indexMu.Lock()
	m.index[outEntry.CacheID] = outEntry
	m.indexMu.Unlock()

	ack := coordproto.WriteAckPayload{Entry: outEntry, CorrelationID: m.ackCounter.Add(1)}
	m.send(client, coordproto.EncodeMessage(coordproto.MsgWriteAck, ack.Encode()))

	m.broadcastIndexUpdate(client, []coordproto.WireIndexEntry{outEntry})
}

func (m *masterCoordinator) broadcastIndexUpdate(except *masterClient, entries []coordproto.WireIndexEntry) {
	update := coordproto.IndexUpdatePayload{SequenceNum: m.seqCounter.Add(1), Entries: entries}
	encoded := coordproto.EncodeMessage(coordproto.MsgIndexUpdate, update.Encode())

	m.clientsMu.Lock()
	targets := make([]*masterClient, 0, len(m.clients))
	for _, c := range m.clients {
		if c != except {
			targets = append(targets, c)
		}
	}
	m.clientsMu.Unlock()

	if len(targets) == 0 {
		return
	}

	for _, c := range targets {
		m.send(c, encoded)
	}

	m.statsMu.Lock()
	m.stats.IndexUpdatesSent++
	m.statsMu.Unlock()
}

func (m *masterCoordinator) handleQueryIndex(client *masterClient, payload []byte) {
	q, err := coordproto.DecodeQueryIndexPayload(payload)
	if err != nil {
		return
	}

	id := hashToCacheID(q.Hash)

	m.indexMu.Lock()
	entry, found := m.index[id]
	m.indexMu.Unlock()

	resp := coordproto.QueryRespPayload{Found: found, Entry: entry}
	m.send(client, coordproto.EncodeMessage(coordproto.MsgQueryResp, resp.Encode()))
}

func (m *masterCoordinator) send(client *masterClient, framed []byte) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	_ = client.conn.SetWriteDeadline(time.Now().Add(m.opts.PollInterval))
	_, _ = client.conn.Write(framed)
}

func (m *masterCoordinator) dropClient(client *masterClient) {
	m.clientsMu.Lock()
	_, existed := m.clients[client.conn]
	delete(m.clients, client.conn)
	count := len(m.clients)
	m.clientsMu.Unlock()

	if existed {
		_ = client.conn.Close()
	}

	m.statsMu.Lock()
	m.stats.ConnectedSlaves = count
	m.statsMu.Unlock()
}

func (m *masterCoordinator) clientCount() int {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	return len(m.clients)
}

// RequestWrite invoked on a master writes directly, without going through
// the wire protocol: there is no "other master" to ask.
func (m *masterCoordinator) RequestWrite(entry coordproto.WireIndexEntry, payload []byte) (coordproto.WireIndexEntry, bool) {
	outEntry, ok := m.opts.WriteRequestCallback(entry, payload)
	if !ok {
		return coordproto.WireIndexEntry{}, false
	}

	m.indexMu.Lock()
	m.index[outEntry.CacheID] = outEntry
	m.indexMu.Unlock()

	m.statsMu.Lock()
	m.stats.BytesWrittenForSlaves += uint64(len(payload))
	m.statsMu.Unlock()

	m.broadcastIndexUpdate(nil, []coordproto.WireIndexEntry{outEntry})

	return outEntry, true
}

func (m *masterCoordinator) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	return m.stats
}

// Stop announces MASTER_EXIT to every connected slave, tears down the
// accept loop and all client connections, and releases the advisory lock
// plus the socket and PID files.
func (m *masterCoordinator) Stop() error {
	var stopErr error

	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.clientsMu.Lock()
			for _, c := range m.clients {
				m.send(c, coordproto.EncodeMessage(coordproto.MsgMasterExit, nil))
			}
			m.clientsMu.Unlock()

			m.cancel()

			if m.ln != nil {
				_ = m.ln.Close()
			}

			m.wg.Wait()

			m.clientsMu.Lock()
			for conn := range m.clients {
				_ = conn.Close()
			}
			m.clients = make(map[net.Conn]*masterClient)
			m.clientsMu.Unlock()
		}

		if err := m.lock.Close(); err != nil {
			stopErr = err
		}

		_ = m.fs.Remove(m.paths.sockPath)
		_ = m.fs.Remove(m.paths.pidPath)
	})

	return stopErr
}

func hashToCacheID(hash [16]byte) uint64 {
	var id uint64
	for i := 0; i < 8; i++ {
		id = id<<8 | uint64(hash[i])
	}

	return id
}
