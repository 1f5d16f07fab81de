package tacplus

// duplexQueueCap is the suggested bound for both the per-session inbound
// queue and the connection-wide outbound queue (spec's §4.C/§5).
const duplexQueueCap = 32

// duplexChannel is a session's bidirectional packet pipe: outbound carries
// packets from the session to the connection's shared writer; inbound
// carries packets the reader loop has routed to this session. Inbound is
// single-producer/single-consumer (the router feeds it, the session alone
// consumes it); outbound has many producers (every session of the
// connection) and a single consumer (the writer loop).
type duplexChannel struct {
	outbound chan<- *Packet // shared with every session and the writer loop
	inbound  chan *Packet   // owned by this session alone
}

func newDuplexChannel(outbound chan<- *Packet) duplexChannel {
	return duplexChannel{
		outbound: outbound,
		inbound:  make(chan *Packet, duplexQueueCap),
	}
}
