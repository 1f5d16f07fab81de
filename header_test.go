package tacplus

import (
	"errors"
	"reflect"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{MajorVersion: verMajor, MinorVersion: verMinor0, Type: TypeAccounting, SeqNo: 1, Flags: FlagUnencrypted, SessionID: 0xdeadbeef, Length: 0},
		{MajorVersion: verMajor, MinorVersion: verMinor1, Type: TypeAuthentication, SeqNo: 0xff, Flags: 0, SessionID: 0, Length: 1 << 20},
		{MajorVersion: verMajor, MinorVersion: verMinor0, Type: TypeAuthorization, SeqNo: 2, Flags: FlagUnencrypted | FlagSingleConnect, SessionID: 1, Length: 9},
	}
	for _, h := range cases {
		b := h.encode(nil)
		if len(b) != HeaderLen {
			t.Fatalf("encode produced %d bytes, want %d", len(b), HeaderLen)
		}
		got, err := decodeHeader(b)
		if err != nil {
			t.Fatalf("decodeHeader: %v", err)
		}
		if !reflect.DeepEqual(got, h) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestDecodeHeaderShortBuffer(t *testing.T) {
	_, err := decodeHeader(make([]byte, HeaderLen-1))
	if !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("got %v, want ErrShortBuffer", err)
	}
}

func TestDecodeHeaderBadMajorVersion(t *testing.T) {
	h := Header{MajorVersion: 0x5, MinorVersion: 0, Type: TypeAccounting}
	_, err := decodeHeader(h.encode(nil))
	if !errors.Is(err, ErrInvalidEnum) {
		t.Fatalf("got %v, want ErrInvalidEnum", err)
	}
}

func TestDecodeHeaderBadMinorVersion(t *testing.T) {
	b := Header{MajorVersion: verMajor, MinorVersion: 0, Type: TypeAccounting}.encode(nil)
	b[hdrVer] = verMajor<<4 | 0x3
	if _, err := decodeHeader(b); !errors.Is(err, ErrInvalidEnum) {
		t.Fatalf("got %v, want ErrInvalidEnum", err)
	}
}

func TestDecodeHeaderBadType(t *testing.T) {
	b := Header{MajorVersion: verMajor, MinorVersion: 0, Type: TypeAccounting}.encode(nil)
	b[hdrType] = 0x7f
	if _, err := decodeHeader(b); !errors.Is(err, ErrInvalidEnum) {
		t.Fatalf("got %v, want ErrInvalidEnum", err)
	}
}

func TestDecodeHeaderReservedFlagBit(t *testing.T) {
	b := Header{MajorVersion: verMajor, MinorVersion: 0, Type: TypeAccounting, Flags: 0x02}.encode(nil)
	if _, err := decodeHeader(b); !errors.Is(err, ErrInvalidFlags) {
		t.Fatalf("got %v, want ErrInvalidFlags", err)
	}
}

func TestDecodeHeaderBodyTooLarge(t *testing.T) {
	h := Header{MajorVersion: verMajor, MinorVersion: 0, Type: TypeAccounting, Length: maxBodyLength + 1}
	if _, err := decodeHeader(h.encode(nil)); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("got %v, want ErrBodyTooLarge", err)
	}
}

func TestNewPacketShortBody(t *testing.T) {
	h := Header{MajorVersion: verMajor, Type: TypeAccounting, Length: 10}
	if _, err := NewPacket(h, make([]byte, 9)); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("got %v, want ErrShortBuffer", err)
	}
}
