package tacplus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Session is a single TACACS+ accounting exchange multiplexed over a
// Connection. A Session is strictly request/reply and single-shot: after
// SendAccounting returns (with a reply or an error) the session is
// complete and must not be reused.
type Session struct {
	id      uint32
	dc      duplexChannel
	manager *sessionManager
	logger  *slog.Logger

	mu       sync.Mutex
	seqNo    uint8
	complete bool
}

func newSession(id uint32, dc duplexChannel, manager *sessionManager, logger *slog.Logger) *Session {
	return &Session{
		id:      id,
		dc:      dc,
		manager: manager,
		logger:  logger,
		seqNo:   1, // the first packet of a session is always sequence 1
	}
}

// ID returns the session's 32-bit session id, as carried in every packet's
// header.
func (s *Session) ID() uint32 { return s.id }

// SendAccounting encodes req, sends it as sequence 1, and waits for the
// matching reply (sequence 2). A Session is single-shot: calling
// SendAccounting more than once, or after Close, returns ErrSessionClosed.
func (s *Session) SendAccounting(ctx context.Context, req *AcctRequest) (*AcctReply, error) {
	s.mu.Lock()
	if s.complete {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	s.complete = true
	seqNo := s.seqNo
	s.mu.Unlock()

	defer s.manager.closeSession(s.id)

	body, err := req.marshal(nil)
	if err != nil {
		return nil, err
	}

	pkt := &Packet{
		Header: Header{
			MajorVersion: verMajor,
			MinorVersion: verMinor0,
			Type:         TypeAccounting,
			SeqNo:        seqNo,
			Flags:        FlagUnencrypted,
			SessionID:    s.id,
			Length:       uint32(len(body)),
		},
		Body: body,
	}

	select {
	case s.dc.outbound <- pkt:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case reply, ok := <-s.dc.inbound:
		if !ok {
			return nil, ErrTransportClosed
		}
		if reply.Header.SeqNo != seqNo+1 {
			return nil, fmt.Errorf("tacplus: out-of-sequence reply: want seq %d, got %d", seqNo+1, reply.Header.SeqNo)
		}
		return unmarshalAcctReply(reply.Body[:reply.Header.Length])
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the session's slot in its connection's routing table
// without sending or waiting for anything. It is safe to call after
// SendAccounting has already completed the session, and is a no-op in
// that case.
func (s *Session) Close() {
	s.mu.Lock()
	already := s.complete
	s.complete = true
	s.mu.Unlock()

	if !already {
		s.manager.closeSession(s.id)
	}
}
