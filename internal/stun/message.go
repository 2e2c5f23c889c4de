// Package stun builds and parses the minimal set of STUN messages needed
// for ICE-Lite binding: a Binding Request carrying USERNAME/USE-CANDIDATE/
// MESSAGE-INTEGRITY/FINGERPRINT, and the matching Binding Success Response.
//
// Wire format follows RFC 5389: a 20-byte header (type, length, magic
// cookie, transaction ID) followed by TLV attributes padded to 4 bytes.
package stun

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const (
	magicCookie = 0x2112A442

	headerLength = 20

	fingerprintXOR = 0x5354554E
)

// Message classes, encoded in the top two bits of the message type.
const (
	classRequest        = 0x0
	classSuccessResponse = 0x2
)

const methodBinding = 0x1

// Attribute types used by this package. Others are preserved opaquely on
// parse but never constructed.
const (
	AttrUsername         = 0x0006
	AttrMessageIntegrity = 0x0008
	AttrErrorCode        = 0x0009
	AttrUnknownAttrs     = 0x000A
	AttrXorMappedAddress = 0x0020
	AttrUseCandidate     = 0x0025
	AttrFingerprint      = 0x8028
)

// Message is a parsed or to-be-serialized STUN message.
type Message struct {
	Class         uint16
	Method        uint16
	TransactionID [12]byte
	Attributes    []Attribute
}

// Attribute is a single STUN TLV attribute.
type Attribute struct {
	Type  uint16
	Value []byte
}

// IsBindingRequest reports whether the first two header bytes identify a
// Binding Request (0x0001), without fully parsing the message.
func IsBindingRequest(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x00 && b[1] == 0x01
}

// IsBindingSuccess reports whether the first two header bytes identify a
// Binding Success Response (0x0101).
func IsBindingSuccess(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x01 && b[1] == 0x01
}

func composeType(class, method uint16) uint16 {
	return (class<<7)&0x0100 | (class<<4)&0x0010 |
		(method<<2)&0x3e00 | (method<<1)&0x00e0 | method&0x000f
}

func decomposeType(t uint16) (class, method uint16) {
	class = (t&0x0100)>>7 | (t&0x0010)>>4
	method = (t&0x3e00)>>2 | (t&0x00e0)>>1 | t&0x000f
	return
}

// Parse decodes a STUN message. It does not verify MESSAGE-INTEGRITY or
// FINGERPRINT; callers needing that call VerifyIntegrity/VerifyFingerprint
// against the original bytes.
func Parse(b []byte) (*Message, error) {
	if len(b) < headerLength {
		return nil, fmt.Errorf("stun: short header: %d bytes", len(b))
	}
	typ := binary.BigEndian.Uint16(b[0:2])
	if typ>>14 != 0 {
		return nil, fmt.Errorf("stun: invalid message type %#x", typ)
	}
	length := binary.BigEndian.Uint16(b[2:4])
	if length%4 != 0 {
		return nil, fmt.Errorf("stun: length %d not 4-byte aligned", length)
	}
	if binary.BigEndian.Uint32(b[4:8]) != magicCookie {
		return nil, fmt.Errorf("stun: bad magic cookie")
	}
	if len(b) < headerLength+int(length) {
		return nil, fmt.Errorf("stun: truncated body: want %d have %d", length, len(b)-headerLength)
	}

	class, method := decomposeType(typ)
	msg := &Message{Class: class, Method: method}
	copy(msg.TransactionID[:], b[8:20])

	body := b[headerLength : headerLength+int(length)]
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, fmt.Errorf("stun: truncated attribute header")
		}
		at := binary.BigEndian.Uint16(body[0:2])
		al := binary.BigEndian.Uint16(body[2:4])
		body = body[4:]
		if int(al) > len(body) {
			return nil, fmt.Errorf("stun: attribute %#x length %d exceeds remaining %d", at, al, len(body))
		}
		val := make([]byte, al)
		copy(val, body[:al])
		body = body[al:]
		if pad := pad4(al); pad > 0 {
			if len(body) < pad {
				return nil, fmt.Errorf("stun: missing attribute padding")
			}
			body = body[pad:]
		}
		msg.Attributes = append(msg.Attributes, Attribute{Type: at, Value: val})
	}
	return msg, nil
}

// Get returns the value of the first attribute of the given type.
func (m *Message) Get(typ uint16) ([]byte, bool) {
	for _, a := range m.Attributes {
		if a.Type == typ {
			return a.Value, true
		}
	}
	return nil, false
}

func pad4(n uint16) int {
	return -int(n) & 3
}

var zeroPad = [4]byte{}

// NewBindingRequest builds a request per spec §4.2: USERNAME is
// "<remoteUfrag>:<localUfrag>", followed by zero-length USE-CANDIDATE,
// MESSAGE-INTEGRITY keyed by remotePwd, and FINGERPRINT.
func NewBindingRequest(localUfrag, remoteUfrag, remotePwd string) ([]byte, error) {
	var tid [12]byte
	if _, err := rand.Read(tid[:]); err != nil {
		return nil, err
	}
	username := remoteUfrag + ":" + localUfrag
	return buildMessage(classRequest, tid, []Attribute{
		{Type: AttrUsername, Value: []byte(username)},
		{Type: AttrUseCandidate, Value: nil},
	}, remotePwd)
}

// NewBindingResponse builds a success response to an inbound Binding
// Request with the given transaction ID, keyed by the local ice_pwd per
// spec §4.2.
func NewBindingResponse(tid [12]byte, localPwd string) ([]byte, error) {
	return buildMessage(classSuccessResponse, tid, nil, localPwd)
}

// buildMessage serializes header + attrs, then appends MESSAGE-INTEGRITY
// (HMAC-SHA1 keyed by integrityKey) and FINGERPRINT per spec §4.2 steps 4-5.
func buildMessage(class uint16, tid [12]byte, attrs []Attribute, integrityKey string) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader(&buf, class, tid, 0)
	for _, a := range attrs {
		writeAttribute(&buf, a)
	}

	// MESSAGE-INTEGRITY: header length must cover everything up to and
	// including this attribute, minus the 20-byte header itself.
	lengthBeforeIntegrity := buf.Len() - headerLength
	patchLength(buf.Bytes(), uint16(lengthBeforeIntegrity+4+20))

	mac := hmac.New(sha1.New, []byte(integrityKey))
	mac.Write(buf.Bytes())
	tag := mac.Sum(nil)
	writeAttribute(&buf, Attribute{Type: AttrMessageIntegrity, Value: tag})

	// FINGERPRINT: header length must cover everything up to and including
	// the fingerprint attribute; CRC32/IEEE is computed over the message
	// with the fingerprint attribute itself excluded, then XORed.
	lengthBeforeFingerprint := buf.Len() - headerLength
	patchLength(buf.Bytes(), uint16(lengthBeforeFingerprint+4+4))

	crc := crc32.ChecksumIEEE(buf.Bytes()) ^ fingerprintXOR
	var crcBytes [4]byte
	binary.BigEndian.PutUint32(crcBytes[:], crc)
	writeAttribute(&buf, Attribute{Type: AttrFingerprint, Value: crcBytes[:]})

	return buf.Bytes(), nil
}

func patchLength(b []byte, length uint16) {
	binary.BigEndian.PutUint16(b[2:4], length)
}

func writeHeader(buf *bytes.Buffer, class uint16, tid [12]byte, length uint16) {
	var hdr [headerLength]byte
	binary.BigEndian.PutUint16(hdr[0:2], composeType(class, methodBinding))
	binary.BigEndian.PutUint16(hdr[2:4], length)
	binary.BigEndian.PutUint32(hdr[4:8], magicCookie)
	copy(hdr[8:20], tid[:])
	buf.Write(hdr[:])
}

func writeAttribute(buf *bytes.Buffer, a Attribute) {
	var tl [4]byte
	binary.BigEndian.PutUint16(tl[0:2], a.Type)
	binary.BigEndian.PutUint16(tl[2:4], uint16(len(a.Value)))
	buf.Write(tl[:])
	buf.Write(a.Value)
	if pad := pad4(uint16(len(a.Value))); pad > 0 {
		buf.Write(zeroPad[:pad])
	}
}

// VerifyFingerprint checks the trailing FINGERPRINT attribute of a raw
// message against CRC32/IEEE with the documented XOR mask.
func VerifyFingerprint(raw []byte) bool {
	if len(raw) < headerLength+8 {
		return false
	}
	fp := raw[len(raw)-8:]
	if binary.BigEndian.Uint16(fp[0:2]) != AttrFingerprint {
		return false
	}
	want := binary.BigEndian.Uint32(fp[4:8])
	got := crc32.ChecksumIEEE(raw[:len(raw)-8]) ^ fingerprintXOR
	return got == want
}

// VerifyIntegrity checks the MESSAGE-INTEGRITY attribute immediately
// preceding FINGERPRINT (if any) against HMAC-SHA1 keyed by key. raw must
// still carry its original header length field.
func VerifyIntegrity(raw []byte, key string) bool {
	const integrityAttrLen = 4 + 20
	const fingerprintAttrLen = 4 + 4
	if len(raw) < headerLength+integrityAttrLen {
		return false
	}
	end := len(raw)
	if len(raw) >= fingerprintAttrLen {
		tailStart := len(raw) - fingerprintAttrLen
		if binary.BigEndian.Uint16(raw[tailStart:tailStart+2]) == AttrFingerprint {
			end = tailStart
		}
	}
	if end < integrityAttrLen {
		return false
	}
	integrityStart := end - integrityAttrLen
	if binary.BigEndian.Uint16(raw[integrityStart:integrityStart+2]) != AttrMessageIntegrity {
		return false
	}
	gotTag := raw[integrityStart+4 : integrityStart+4+20]

	signed := make([]byte, integrityStart)
	copy(signed, raw[:integrityStart])
	binary.BigEndian.PutUint16(signed[2:4], uint16(integrityStart-headerLength+integrityAttrLen))

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write(signed)
	return hmac.Equal(mac.Sum(nil), gotTag)
}
