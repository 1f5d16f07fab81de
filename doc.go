// Package tacplus is a client library for the TACACS+ protocol.
//
// It provides a single multiplexed transport over a byte-oriented
// connection (plain TCP or TLS 1.3), carrying many concurrent, independent
// sessions, each exchanging one or more request/reply packet pairs with a
// TACACS+ server. Only the Accounting body codec is implemented in depth;
// Authentication and Authorization share the same header and transport but
// are left to callers building on top of Packet.
//
// A typical client dials a stream, wraps it in a Connection, starts the
// connection running, then creates sessions from it:
//
//	nc, err := net.Dial("tcp", addr)
//	conn := tacplus.NewConnection(nc, tacplus.ConnConfig{Secret: []byte("shared-secret")})
//	go conn.Run(ctx)
//	sess, err := conn.CreateSession(ctx)
//	reply, err := sess.SendAccounting(ctx, &tacplus.AcctRequest{...})
package tacplus
