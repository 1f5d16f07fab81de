package tacplus

import (
	"encoding/binary"
	"fmt"
)

// Packet types carried in Header.Type.
const (
	TypeAuthentication = 0x01
	TypeAuthorization  = 0x02
	TypeAccounting     = 0x03
)

// Header flag bits. All other bits are reserved and cause a decode
// failure if set.
const (
	FlagUnencrypted   = 0x01
	FlagSingleConnect = 0x04

	knownFlags = FlagUnencrypted | FlagSingleConnect
)

const (
	verMajor   = 0xc // the only legal major version
	verMinor0  = 0x0
	verMinor1  = 0x1
	verDefault = verMajor<<4 | verMinor0

	// HeaderLen is the fixed size in bytes of a TACACS+ packet header.
	HeaderLen = 12

	// maxBodyLength bounds the body length a decoded header may declare.
	// The largest legitimate Accounting body (every length-prefixed
	// field maxed out) is well under 1MiB; anything beyond that is
	// either corrupt framing or a hostile peer, and is rejected before
	// a buffer is ever allocated for it.
	maxBodyLength = 1 << 20

	hdrVer     = 0
	hdrType    = 1
	hdrSeqNo   = 2
	hdrFlags   = 3
	hdrID      = 4
	hdrBodyLen = 8
)

// Header is the fixed 12-byte TACACS+ packet header described in the
// protocol's data model: a packed major/minor version, the session type,
// a sequence number, a flags bitfield, the session id and the body length.
type Header struct {
	MajorVersion uint8
	MinorVersion uint8
	Type         uint8
	SeqNo        uint8
	Flags        uint8
	SessionID    uint32
	Length       uint32
}

// version packs MajorVersion/MinorVersion into the single on-wire byte.
func (h Header) version() uint8 { return h.MajorVersion<<4 | h.MinorVersion }

// Unencrypted reports whether the header's UNENCRYPTED flag is set, i.e.
// the packet body is currently cleartext.
func (h Header) Unencrypted() bool { return h.Flags&FlagUnencrypted != 0 }

// encode appends the 12-byte wire encoding of h to b and returns the
// extended slice. encode is total for any Header value; callers are
// responsible for only constructing legal headers (see decodeHeader for
// the inverse validation).
func (h Header) encode(b []byte) []byte {
	b = append(b, h.version(), h.Type, h.SeqNo, h.Flags)
	var id, length [4]byte
	binary.BigEndian.PutUint32(id[:], h.SessionID)
	binary.BigEndian.PutUint32(length[:], h.Length)
	b = append(b, id[:]...)
	b = append(b, length[:]...)
	return b
}

// decodeHeader parses the first HeaderLen bytes of b as a Header,
// rejecting short buffers, unsupported version/type enums and reserved
// flag bits.
func decodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrShortBuffer, HeaderLen, len(b))
	}

	major := b[hdrVer] >> 4
	minor := b[hdrVer] & 0xf
	if major != verMajor {
		return Header{}, fmt.Errorf("%w: unsupported major version %#x", ErrInvalidEnum, major)
	}
	if minor != verMinor0 && minor != verMinor1 {
		return Header{}, fmt.Errorf("%w: unsupported minor version %#x", ErrInvalidEnum, minor)
	}

	typ := b[hdrType]
	switch typ {
	case TypeAuthentication, TypeAuthorization, TypeAccounting:
	default:
		return Header{}, fmt.Errorf("%w: unsupported packet type %#x", ErrInvalidEnum, typ)
	}

	flags := b[hdrFlags]
	if flags&^knownFlags != 0 {
		return Header{}, fmt.Errorf("%w: reserved bits set in %#x", ErrInvalidFlags, flags)
	}

	length := binary.BigEndian.Uint32(b[hdrBodyLen:])
	if length > maxBodyLength {
		return Header{}, fmt.Errorf("%w: declared %d, max %d", ErrBodyTooLarge, length, maxBodyLength)
	}

	return Header{
		MajorVersion: major,
		MinorVersion: minor,
		Type:         typ,
		SeqNo:        b[hdrSeqNo],
		Flags:        flags,
		SessionID:    binary.BigEndian.Uint32(b[hdrID:]),
		Length:       length,
	}, nil
}

// Packet is a decoded TACACS+ packet: its header and raw body. Body may be
// longer than Header.Length; decoders only look at the first
// Header.Length bytes and ignore any trailer.
type Packet struct {
	Header Header
	Body   []byte
}

// NewPacket constructs a Packet, verifying that body is at least as long
// as header.Length claims.
func NewPacket(header Header, body []byte) (*Packet, error) {
	if uint32(len(body)) < header.Length {
		return nil, fmt.Errorf("%w: header declares body length %d, got %d", ErrShortBuffer, header.Length, len(body))
	}
	return &Packet{Header: header, Body: body}, nil
}

// encode appends the wire encoding (header followed by body) to b.
func (p *Packet) encode(b []byte) []byte {
	b = p.Header.encode(b)
	return append(b, p.Body[:p.Header.Length]...)
}
