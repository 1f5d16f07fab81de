package tacplus

import "crypto/md5"

// pad computes the MD5-derived keystream for a body of length n, given the
// packet's session id, version byte and sequence number, and the shared
// secret key:
//
//	h0 = MD5(session_id || key || ver || seq_no)
//	h(i+1) = MD5(session_id || key || ver || seq_no || h(i))
//
// with the blocks h0, h1, ... concatenated and truncated to n bytes.
func pad(sessionID uint32, ver, seqNo uint8, key []byte, n int) []byte {
	iv := make([]byte, 0, 4+len(key)+2)
	iv = append(iv, byte(sessionID>>24), byte(sessionID>>16), byte(sessionID>>8), byte(sessionID))
	iv = append(iv, key...)
	iv = append(iv, ver, seqNo)

	out := make([]byte, 0, n+md5.Size)
	var sum []byte
	h := md5.New()
	for len(out) < n {
		h.Reset()
		_, _ = h.Write(iv)
		_, _ = h.Write(sum)
		sum = h.Sum(nil)
		out = append(out, sum...)
	}
	return out[:n]
}

// xorBody XORs body in place with the obfuscation pad derived from the
// given header fields and key. It is its own inverse.
func xorBody(header Header, key []byte, body []byte) {
	p := pad(header.SessionID, header.version(), header.SeqNo, key, len(body))
	for i, c := range p {
		body[i] ^= c
	}
}

// ToObfuscated returns a packet with its body XORed with the obfuscation
// pad and the UNENCRYPTED flag cleared. It is a no-op (returns p unchanged)
// if the packet's body is already obfuscated (flag already clear) or if
// key is empty.
func (p *Packet) ToObfuscated(key []byte) *Packet {
	if len(key) == 0 || !p.Header.Unencrypted() {
		return p
	}
	body := append([]byte(nil), p.Body...)
	xorBody(p.Header, key, body[:p.Header.Length])
	h := p.Header
	h.Flags &^= FlagUnencrypted
	return &Packet{Header: h, Body: body}
}

// ToDeobfuscated returns a packet with its body XORed with the obfuscation
// pad and the UNENCRYPTED flag set. It is a no-op if the packet is already
// cleartext (flag already set) or if key is empty.
func (p *Packet) ToDeobfuscated(key []byte) *Packet {
	if len(key) == 0 || p.Header.Unencrypted() {
		return p
	}
	body := append([]byte(nil), p.Body...)
	xorBody(p.Header, key, body[:p.Header.Length])
	h := p.Header
	h.Flags |= FlagUnencrypted
	return &Packet{Header: h, Body: body}
}
