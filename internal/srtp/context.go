// Package srtp implements the four SRTP/SRTCP crypto contexts the session
// needs (audio-send, video-send, rtcp-send, recv), suite
// AES_CM_128_HMAC_SHA1_80, per RFC 3711 and the reduced-size RTCP
// extensions of RFC 5506.
package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

const (
	authKeyLength    = 20
	AuthTagLength    = 10
	EncryptKeyLength = 16
	SaltKeyLength    = 14

	eFlagMask = 1 << 31

	// RFC 3550 Appendix A.1 rollover-counter disorder tolerance.
	maxROCDisorder    = 100
	maxSequenceNumber = 1 << 16
)

// Context is a single keyed SRTP/SRTCP crypto context tracking rollover
// state for one stream (spec §3: audio-send, video-send, rtcp-send, or
// recv each get their own Context).
type Context struct {
	encryptRTP  func(payload []byte, ssrc uint32, index uint64)
	encryptRTCP func(payload []byte, ssrc uint32, index uint64)
	authRTP     func(m []byte) []byte
	authRTCP    func(m []byte) []byte

	rocBySSRC map[uint32]*rocState
	srtcpIdx  uint32
}

type rocState struct {
	rolloverCounter uint32
	lastSeq         uint16
	seen            bool
}

// NewContext derives all six session keys from a single 30-byte
// masterKey‖masterSalt (16+14) per RFC 3711 §4.3 and builds the
// corresponding AES-CM/HMAC-SHA1 transforms.
func NewContext(masterKey, masterSalt []byte) (*Context, error) {
	if len(masterKey) != EncryptKeyLength {
		return nil, fmt.Errorf("srtp: master key must be %d bytes, got %d", EncryptKeyLength, len(masterKey))
	}
	if len(masterSalt) != SaltKeyLength {
		return nil, fmt.Errorf("srtp: master salt must be %d bytes, got %d", SaltKeyLength, len(masterSalt))
	}

	srtpEncKey := deriveKey(masterKey, masterSalt, 0x00, EncryptKeyLength)
	srtpAuthKey := deriveKey(masterKey, masterSalt, 0x01, authKeyLength)
	srtpSaltKey := deriveKey(masterKey, masterSalt, 0x02, SaltKeyLength)
	srtcpEncKey := deriveKey(masterKey, masterSalt, 0x03, EncryptKeyLength)
	srtcpAuthKey := deriveKey(masterKey, masterSalt, 0x04, authKeyLength)
	srtcpSaltKey := deriveKey(masterKey, masterSalt, 0x05, SaltKeyLength)

	srtpCipher, err := aesCounterMode(srtpEncKey, srtpSaltKey)
	if err != nil {
		return nil, err
	}
	srtcpCipher, err := aesCounterMode(srtcpEncKey, srtcpSaltKey)
	if err != nil {
		return nil, err
	}

	return &Context{
		encryptRTP:  srtpCipher,
		encryptRTCP: srtcpCipher,
		authRTP:     hmacSHA1(srtpAuthKey),
		authRTCP:    hmacSHA1(srtcpAuthKey),
		rocBySSRC:   make(map[uint32]*rocState),
	}, nil
}

// EncryptRTP encrypts the payload of an RTP packet in place and appends
// the 10-byte auth tag, per spec §4.7 step 5/§8 ("SRTP output size ≥ RTP
// input size"). headerLen is the length of the fixed+CSRC RTP header
// (payload start offset). seq is the packet's 16-bit sequence number.
func (c *Context) EncryptRTP(packetBuf []byte, ssrc uint32, seq uint16, headerLen int) ([]byte, error) {
	if headerLen > len(packetBuf) {
		return nil, fmt.Errorf("srtp: header length %d exceeds packet length %d", headerLen, len(packetBuf))
	}
	roc := c.updateRolloverCount(ssrc, seq)
	index := uint64(roc)<<16 | uint64(seq)

	c.encryptRTP(packetBuf[headerLen:], ssrc, index&((1<<48)-1))

	withROC := append(append([]byte(nil), packetBuf...), 0, 0, 0, 0)
	binary.BigEndian.PutUint32(withROC[len(withROC)-4:], roc)
	tag := c.authRTP(withROC)

	out := append(packetBuf, tag...)
	if len(out) < len(packetBuf) {
		return nil, fmt.Errorf("srtp: ciphertext shorter than plaintext")
	}
	return out, nil
}

// EncryptRTCP encrypts an RTCP packet's payload (everything after the
// 8-byte fixed header) in place and appends the E-flagged SRTCP index plus
// the auth tag, per RFC 5506 §3.4.3.
func (c *Context) EncryptRTCP(packetBuf []byte) ([]byte, error) {
	if len(packetBuf) < 8 {
		return nil, fmt.Errorf("srtp: rtcp packet too short")
	}
	ssrc := binary.BigEndian.Uint32(packetBuf[4:8])
	index := c.srtcpIdx
	c.srtcpIdx++

	c.encryptRTCP(packetBuf[8:], ssrc, uint64(index)&((1<<31)-1))

	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], eFlagMask|index)
	withIdx := append(append([]byte(nil), packetBuf...), idxBuf[:]...)
	tag := c.authRTCP(withIdx)

	out := append(append(packetBuf, idxBuf[:]...), tag...)
	if len(out) < len(packetBuf) {
		return nil, fmt.Errorf("srtp: rtcp ciphertext shorter than plaintext")
	}
	return out, nil
}

// DecryptRTCP verifies and decrypts an inbound SRTCP packet, used for
// receive-side feedback parsing (PLI/FIR/SLI/RPSI/AFB).
func (c *Context) DecryptRTCP(buf []byte) ([]byte, error) {
	tagStart := len(buf) - AuthTagLength
	idxStart := tagStart - 4
	if idxStart < 8 {
		return nil, fmt.Errorf("srtp: rtcp packet too short to decrypt")
	}
	gotTag := buf[tagStart:]
	wantTag := c.authRTCP(buf[:tagStart])
	if !hmac.Equal(gotTag, wantTag) {
		return nil, fmt.Errorf("srtp: rtcp integrity check failed")
	}

	index := binary.BigEndian.Uint32(buf[idxStart:tagStart])
	encrypted := index&eFlagMask != 0
	index &^= eFlagMask

	if !encrypted {
		return append([]byte(nil), buf[:idxStart]...), nil
	}

	ssrc := binary.BigEndian.Uint32(buf[4:8])
	payload := append([]byte(nil), buf[8:idxStart]...)
	c.encryptRTCP(payload, ssrc, uint64(index))
	return append(buf[:8:8], payload...), nil
}

// updateRolloverCount implements RFC 3550 Appendix A.1's disorder-tolerant
// rollover tracking, grounded on the teacher's srtp.Context.updateRolloverCount.
func (c *Context) updateRolloverCount(ssrc uint32, seq uint16) uint32 {
	s, ok := c.rocBySSRC[ssrc]
	if !ok {
		s = &rocState{}
		c.rocBySSRC[ssrc] = s
	}

	switch {
	case !s.seen:
		s.seen = true
	case seq == 0:
		if s.lastSeq > maxROCDisorder {
			s.rolloverCounter++
		}
	case s.lastSeq < maxROCDisorder && seq > (maxSequenceNumber-maxROCDisorder):
		s.rolloverCounter--
	case seq < maxROCDisorder && s.lastSeq > (maxSequenceNumber-maxROCDisorder):
		s.rolloverCounter++
	}
	s.lastSeq = seq
	return s.rolloverCounter
}

// deriveKey is the SRTP key derivation function from RFC 3711 §4.3: the
// session key comes from AES-CM keystream output of PRF_n(master_key, x)
// where x = (master_salt XOR (label || r)) * 2^16.
func deriveKey(masterKey, masterSalt []byte, label byte, n int) []byte {
	x := append([]byte(nil), masterSalt...)
	x[len(x)-7] ^= label

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		panic(err)
	}
	iv := padRight(x, aes.BlockSize)
	stream := cipher.NewCTR(block, iv)

	key := make([]byte, n)
	stream.XORKeyStream(key, key)
	return key
}

func aesCounterMode(key, salt []byte) (func(payload []byte, ssrc uint32, index uint64), error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return func(payload []byte, ssrc uint32, index uint64) {
		iv := make([]byte, aes.BlockSize)
		copy(iv, salt)
		xor32(iv[4:8], ssrc)
		xor48(iv[8:14], index)
		cipher.NewCTR(block, iv).XORKeyStream(payload, payload)
	}, nil
}

func hmacSHA1(key []byte) func([]byte) []byte {
	return func(m []byte) []byte {
		mac := hmac.New(sha1.New, key)
		mac.Write(m)
		return mac.Sum(nil)[:AuthTagLength]
	}
}

func xor32(buf []byte, v uint32) {
	buf[0] ^= byte(v >> 24)
	buf[1] ^= byte(v >> 16)
	buf[2] ^= byte(v >> 8)
	buf[3] ^= byte(v)
}

func xor48(buf []byte, v uint64) {
	buf[0] ^= byte(v >> 40)
	buf[1] ^= byte(v >> 32)
	xor32(buf[2:6], uint32(v))
}

func padRight(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}
