package tacplus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ConnConfig configures a Connection. Secret is the obfuscation key used
// for outbound packets; RotatingSecrets, if non-empty, is a list of
// additional candidate keys tried alongside Secret against an inbound
// obfuscated packet, starting from whichever key last decoded one, letting
// a shared secret be rolled without dropping sessions already in flight.
type ConnConfig struct {
	Secret          []byte
	RotatingSecrets [][]byte

	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger  *slog.Logger
	Metrics *Collector
}

func (c ConnConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Connection drives a single duplex TACACS+ transport: a writer loop that
// serializes every session's outbound packets onto the stream, a reader
// loop that decodes inbound packets and routes them to the matching
// session, and a supervisor that waits for both and, as soon as either
// exits, stops admitting new sessions and closes the stream (spec's
// connection driver, §4.E).
type Connection struct {
	stream DuplexStream
	cfg    ConnConfig
	logger *slog.Logger

	manager  *sessionManager
	outbound chan *Packet

	lastGoodSecret atomic.Int32
	running        atomic.Bool

	runOnce sync.Once
	cancel  context.CancelFunc
	doneCh  chan struct{}
	runErr  error
}

// NewConnection builds a Connection over stream. The connection does
// nothing until Run is called.
func NewConnection(stream DuplexStream, cfg ConnConfig) *Connection {
	c := &Connection{
		stream:   stream,
		cfg:      cfg,
		logger:   cfg.logger(),
		outbound: make(chan *Packet, duplexQueueCap),
		doneCh:   make(chan struct{}),
	}
	c.manager = newSessionManager(c.outbound, c.logger, cfg.Metrics, cfg.IdleTimeout, c.idleShutdown)
	return c
}

// idleShutdown is invoked by the session manager's idle timer when the
// connection has had no open sessions for IdleTimeout. It disables new
// sessions and closes the stream, which unwinds both driver loops.
func (c *Connection) idleShutdown() {
	c.logger.Info("closing idle connection", "idle_timeout", c.cfg.IdleTimeout)
	c.manager.disableNewSessions()
	_ = c.stream.Close()
}

// Run drives the connection until ctx is cancelled, the stream fails, or a
// malformed frame is read. It blocks until both the reader and writer
// loops have exited and returns the first non-nil error either produced.
// Run must only be called once.
func (c *Connection) Run(ctx context.Context) error {
	c.runOnce.Do(func() {
		c.runErr = c.run(ctx)
	})
	return c.runErr
}

func (c *Connection) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	c.running.Store(true)
	defer c.running.Store(false)
	defer close(c.doneCh)
	defer c.manager.shutdown()

	var once sync.Once
	onExit := func() {
		once.Do(func() {
			c.manager.disableNewSessions()
			_ = c.stream.Close()
			cancel()
		})
	}

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := c.writerLoop(gCtx)
		onExit()
		return err
	})
	g.Go(func() error {
		err := c.readerLoop(gCtx)
		onExit()
		return err
	})

	return g.Wait()
}

// IsRunning reports whether Run's supervisor is still active.
func (c *Connection) IsRunning() bool { return c.running.Load() }

// Done returns a channel closed once Run has returned.
func (c *Connection) Done() <-chan struct{} { return c.doneCh }

// CreateSession admits a new session if the connection is still accepting
// new work (ErrClosed otherwise).
func (c *Connection) CreateSession(ctx context.Context) (*Session, error) {
	id, dc, err := c.manager.createSession(ctx)
	if err != nil {
		return nil, err
	}
	return newSession(id, dc, c.manager, c.logger), nil
}

func (c *Connection) writerLoop(ctx context.Context) error {
	buf := make([]byte, 0, HeaderLen+256)
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-c.outbound:
			if !ok {
				return nil
			}
			if err := c.writePacket(p, buf[:0]); err != nil {
				return err
			}
		}
	}
}

func (c *Connection) writePacket(p *Packet, buf []byte) error {
	out := p
	if len(c.cfg.Secret) > 0 {
		out = p.ToObfuscated(c.cfg.Secret)
	}

	if c.cfg.WriteTimeout > 0 {
		if d, ok := c.stream.(interface{ SetWriteDeadline(time.Time) error }); ok {
			_ = d.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
		}
	}

	buf = out.encode(buf)
	if _, err := c.stream.Write(buf); err != nil {
		return newIOError(err)
	}
	c.cfg.Metrics.packetSent()
	return nil
}

func (c *Connection) readerLoop(ctx context.Context) error {
	headerBuf := make([]byte, HeaderLen)
	for {
		if ctx.Err() != nil {
			return nil
		}

		if c.cfg.ReadTimeout > 0 {
			if d, ok := c.stream.(interface{ SetReadDeadline(time.Time) error }); ok {
				_ = d.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
			}
		}

		if _, err := io.ReadFull(c.stream, headerBuf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return newIOError(err)
		}

		hdr, err := decodeHeader(headerBuf)
		if err != nil {
			c.logger.Error("malformed header, closing connection", "err", err)
			return err
		}

		body := make([]byte, hdr.Length)
		if _, err := io.ReadFull(c.stream, body); err != nil {
			return newIOError(err)
		}

		pkt, err := NewPacket(hdr, body)
		if err != nil {
			return err
		}

		pkt = c.deobfuscate(pkt)
		c.cfg.Metrics.packetReceived()
		c.manager.route(pkt)
	}
}

// deobfuscate restores an inbound packet's body to cleartext. If the
// packet is already cleartext, or no key material is configured, it is
// returned unchanged. Otherwise the candidate keys (Secret, then
// RotatingSecrets) are tried in turn, starting from the one that last
// succeeded and wrapping around, and the first candidate whose body
// decodes as a well-formed accounting reply wins. If none does, the
// packet is deobfuscated with the first candidate.
func (c *Connection) deobfuscate(p *Packet) *Packet {
	if p.Header.Unencrypted() {
		return p
	}

	secrets := c.secretCandidates()
	if len(secrets) == 0 {
		return p
	}

	start := int(c.lastGoodSecret.Load())
	if start >= len(secrets) {
		start = 0
	}
	for i := 0; i < len(secrets); i++ {
		idx := (start + i) % len(secrets)
		candidate := p.ToDeobfuscated(secrets[idx])
		if verifyBody(candidate.Header, candidate.Body) {
			c.lastGoodSecret.Store(int32(idx))
			return candidate
		}
	}
	return p.ToDeobfuscated(secrets[0])
}

func (c *Connection) secretCandidates() [][]byte {
	if len(c.cfg.Secret) == 0 && len(c.cfg.RotatingSecrets) == 0 {
		return nil
	}
	out := make([][]byte, 0, 1+len(c.cfg.RotatingSecrets))
	if len(c.cfg.Secret) > 0 {
		out = append(out, c.cfg.Secret)
	}
	return append(out, c.cfg.RotatingSecrets...)
}

// verifyBody reports whether body looks like a correctly obfuscated
// accounting reply for header. Non-accounting packets have no codec this
// package can check, so they pass unconditionally.
func verifyBody(header Header, body []byte) bool {
	if header.Type != TypeAccounting {
		return true
	}
	_, err := unmarshalAcctReply(body[:header.Length])
	return err == nil
}
