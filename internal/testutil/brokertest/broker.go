// Package brokertest runs an in-process hpfeeds broker for client tests.
package brokertest

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/danmuck/hpfeeds/internal/auth"
	"github.com/danmuck/hpfeeds/internal/protocol"
	"github.com/danmuck/hpfeeds/internal/protocol/frame"
)

// Options shapes the broker's behavior for one test.
type Options struct {
	Name  string
	Nonce []byte
	// Secrets maps ident to shared secret. A failed AUTH gets an ERROR frame and a closed socket.
	Secrets map[string]string
	// Verifier overrides Secrets when set.
	Verifier auth.Verifier
	// FirstFrame replaces the INFO challenge when non-nil.
	FirstFrame []byte
	// InfoChunks splits the INFO frame into this many writes.
	InfoChunks int
	// Limits caps frames read from clients; zero uses frame.DefaultLimits.
	Limits frame.Limits
}

// Event is one frame the broker received after INFO.
type Event struct {
	Frame   protocol.Frame
	AuthOK  bool
	Ident   string
	Channel string
	Payload []byte
}

type Broker struct {
	t    testing.TB
	ln   net.Listener
	opts Options

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func Start(t testing.TB, opts Options) *Broker {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "brokertest"
	}
	if opts.Verifier == nil {
		opts.Verifier = auth.StaticSecrets(opts.Secrets)
	}
	if opts.Limits.MaxFrameBytes == 0 {
		opts.Limits = frame.DefaultLimits()
	}
	if opts.Nonce == nil {
		opts.Nonce = []byte{0x10, 0x20, 0x30, 0x40}
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	b := &Broker{
		t:      t,
		ln:     ln,
		opts:   opts,
		events: make(chan Event, 1024),
		done:   make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}
	b.wg.Add(1)
	go b.acceptLoop()
	t.Cleanup(b.Close)
	return b
}

func (b *Broker) Host() string {
	host, _, _ := net.SplitHostPort(b.ln.Addr().String())
	return host
}

func (b *Broker) Port() int {
	_, port, _ := net.SplitHostPort(b.ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

func (b *Broker) Events() <-chan Event {
	return b.events
}

// Close stops accepting, drops live connections, and waits for handlers.
func (b *Broker) Close() {
	_ = b.ln.Close()
	b.mu.Lock()
	if !b.closed {
		close(b.done)
	}
	b.closed = true
	for conn := range b.conns {
		_ = conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				b.t.Logf("brokertest: accept: %v", err)
			}
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.serve(conn)
		}()
	}
}

func (b *Broker) serve(conn net.Conn) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	b.conns[conn] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		_ = conn.Close()
	}()
	if err := b.writeChallenge(conn); err != nil {
		return
	}

	r := frame.NewReader(conn, b.opts.Limits)
	authed := ""
	for {
		f, err := r.ReadFrame()
		if err != nil {
			return
		}
		ev := Event{Frame: f}
		switch f.Opcode {
		case protocol.OpAuth:
			ident, digest, ok := splitField(f.Payload)
			ev.Ident = ident
			ev.AuthOK = ok && b.opts.Verifier.Verify(ident, b.opts.Nonce, digest) == nil
			if !b.emit(ev) {
				return
			}
			if !ev.AuthOK {
				buf, _ := frame.Encode(protocol.OpError, []byte("authentication failed for "+ident))
				_, _ = conn.Write(buf)
				return
			}
			authed = ident
		case protocol.OpPublish:
			ident, rest, ok := splitField(f.Payload)
			if !ok {
				return
			}
			channel, payload, ok := splitField(rest)
			if !ok {
				return
			}
			ev.AuthOK = authed != "" && ident == authed
			ev.Ident = ident
			ev.Channel = channel
			ev.Payload = payload
			if !b.emit(ev) {
				return
			}
		default:
			if !b.emit(ev) {
				return
			}
		}
	}
}

// emit delivers ev unless the broker is shutting down.
func (b *Broker) emit(ev Event) bool {
	select {
	case b.events <- ev:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broker) writeChallenge(conn net.Conn) error {
	buf := b.opts.FirstFrame
	if buf == nil {
		payload := append([]byte{byte(len(b.opts.Name))}, b.opts.Name...)
		payload = append(payload, b.opts.Nonce...)
		var err error
		buf, err = frame.Encode(protocol.OpInfo, payload)
		if err != nil {
			return err
		}
	}
	chunks := b.opts.InfoChunks
	if chunks < 1 {
		chunks = 1
	}
	step := (len(buf) + chunks - 1) / chunks
	for start := 0; start < len(buf); start += step {
		end := min(start+step, len(buf))
		if _, err := conn.Write(buf[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// splitField reads one u8 length-prefixed string and returns the remainder.
func splitField(b []byte) (string, []byte, bool) {
	if len(b) < 1 || int(b[0]) > len(b)-1 {
		return "", nil, false
	}
	n := int(b[0])
	return string(b[1 : 1+n]), b[1+n:], true
}
