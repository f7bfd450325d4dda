// Package nano implements the NanoTDF binary header. The header is
// big-endian and bit-packed; any accepted header must serialize back
// byte-for-byte.
package nano

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

var magic = [3]byte{0x4C, 0x31, 0x4C} // "L1L"

// Curve is the ECC curve selector carried in the mode bytes.
type Curve uint8

const (
	CurveSecp256r1 Curve = 0
	CurveSecp384r1 Curve = 1
	CurveSecp521r1 Curve = 2
	CurveSecp256k1 Curve = 3
)

func (c Curve) valid() bool { return c <= CurveSecp256k1 }

// PublicKeyLength is the compressed-point length for the curve.
func (c Curve) PublicKeyLength() int {
	switch c {
	case CurveSecp384r1:
		return 49
	case CurveSecp521r1:
		return 67
	default:
		return 33
	}
}

// SignatureLength is the raw (r||s) ECDSA signature length for the curve.
func (c Curve) SignatureLength() int {
	switch c {
	case CurveSecp384r1:
		return 96
	case CurveSecp521r1:
		return 132
	default:
		return 64
	}
}

// Cipher is the symmetric cipher selector; all variants are AES-256-GCM
// with differing tag lengths.
type Cipher uint8

const (
	CipherAES256GCMTag64  Cipher = 0
	CipherAES256GCMTag96  Cipher = 1
	CipherAES256GCMTag104 Cipher = 2
	CipherAES256GCMTag112 Cipher = 3
	CipherAES256GCMTag120 Cipher = 4
	CipherAES256GCMTag128 Cipher = 5
)

func (c Cipher) TagLength() int {
	switch c {
	case CipherAES256GCMTag64:
		return 8
	case CipherAES256GCMTag96:
		return 12
	case CipherAES256GCMTag104:
		return 13
	case CipherAES256GCMTag112:
		return 14
	case CipherAES256GCMTag120:
		return 15
	default:
		return 16
	}
}

// ECCMode is one byte: [hasECDSABinding:1][reserved:4][curve:3].
type ECCMode struct {
	ECDSABinding bool
	Curve        Curve
}

// SymConfig is one byte: [hasSignature:1][signatureCurve:3][cipher:4].
type SymConfig struct {
	HasSignature   bool
	SignatureCurve Curve
	Cipher         Cipher
}

const gmacBindingLength = 8

// PolicyType discriminates the policy body encoding.
type PolicyType uint8

const (
	PolicyRemote       PolicyType = 0
	PolicyPlaintext    PolicyType = 1
	PolicyEncrypted    PolicyType = 2
	PolicyEncryptedPKA PolicyType = 3
)

// Policy is the embedded or remote policy block with its crypto binding.
// Remote is set iff Type == PolicyRemote, Body otherwise.
type Policy struct {
	Type    PolicyType
	Remote  *ResourceLocator
	Body    []byte
	Binding []byte
}

// Header is the parsed NanoTDF header.
type Header struct {
	KAS          ResourceLocator
	Mode         ECCMode
	Config       SymConfig
	Policy       Policy
	EphemeralKey []byte
}

// ParseError reports a malformed header together with the byte offset at
// which parsing stopped.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("nanotdf parse failed at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseError(s *kaitai.Stream, err error) error {
	pos, posErr := s.Pos()
	if posErr != nil {
		pos = -1
	}
	return &ParseError{Offset: pos, Err: err}
}

// Parse reads a header from the front of b and returns it along with the
// remaining (payload) bytes.
func Parse(b []byte) (*Header, []byte, error) {
	s := kaitai.NewStream(bytes.NewReader(b))
	h := &Header{}

	m, err := s.ReadBytes(3)
	if err != nil {
		return nil, nil, parseError(s, err)
	}
	if !bytes.Equal(m, magic[:]) {
		return nil, nil, parseError(s, errors.New("bad magic"))
	}

	if h.KAS, err = parseResourceLocator(s); err != nil {
		return nil, nil, parseError(s, err)
	}

	modeByte, err := s.ReadU1()
	if err != nil {
		return nil, nil, parseError(s, err)
	}
	h.Mode = ECCMode{
		ECDSABinding: modeByte&0x80 != 0,
		Curve:        Curve(modeByte & 0x07),
	}
	if !h.Mode.Curve.valid() {
		return nil, nil, parseError(s, fmt.Errorf("unsupported curve %d", h.Mode.Curve))
	}

	cfgByte, err := s.ReadU1()
	if err != nil {
		return nil, nil, parseError(s, err)
	}
	h.Config = SymConfig{
		HasSignature:   cfgByte&0x80 != 0,
		SignatureCurve: Curve(cfgByte >> 4 & 0x07),
		Cipher:         Cipher(cfgByte & 0x0F),
	}
	if h.Config.Cipher > CipherAES256GCMTag128 {
		return nil, nil, parseError(s, fmt.Errorf("unsupported cipher %d", h.Config.Cipher))
	}

	if h.Policy, err = parsePolicy(s, h.Mode); err != nil {
		return nil, nil, parseError(s, err)
	}

	if h.EphemeralKey, err = s.ReadBytes(h.Mode.Curve.PublicKeyLength()); err != nil {
		return nil, nil, parseError(s, err)
	}

	pos, err := s.Pos()
	if err != nil {
		return nil, nil, parseError(s, err)
	}
	return h, b[pos:], nil
}

func parsePolicy(s *kaitai.Stream, mode ECCMode) (Policy, error) {
	var p Policy
	typeByte, err := s.ReadU1()
	if err != nil {
		return p, err
	}
	p.Type = PolicyType(typeByte)

	switch p.Type {
	case PolicyRemote:
		rl, err := parseResourceLocator(s)
		if err != nil {
			return p, err
		}
		p.Remote = &rl
	case PolicyPlaintext, PolicyEncrypted, PolicyEncryptedPKA:
		length, err := s.ReadU2be()
		if err != nil {
			return p, err
		}
		if p.Body, err = s.ReadBytes(int(length)); err != nil {
			return p, err
		}
	default:
		return p, fmt.Errorf("unknown policy type %d", p.Type)
	}

	bindingLen := gmacBindingLength
	if mode.ECDSABinding {
		bindingLen = mode.Curve.SignatureLength()
	}
	if p.Binding, err = s.ReadBytes(bindingLen); err != nil {
		return p, err
	}
	return p, nil
}

// Serialize writes the header back to bytes. Serialize(Parse(b)) == b for
// every accepted b.
func (h *Header) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(magic[:])
	h.KAS.serialize(&buf)

	modeByte := byte(h.Mode.Curve) & 0x07
	if h.Mode.ECDSABinding {
		modeByte |= 0x80
	}
	buf.WriteByte(modeByte)

	cfgByte := byte(h.Config.Cipher)&0x0F | (byte(h.Config.SignatureCurve)&0x07)<<4
	if h.Config.HasSignature {
		cfgByte |= 0x80
	}
	buf.WriteByte(cfgByte)

	buf.WriteByte(byte(h.Policy.Type))
	switch h.Policy.Type {
	case PolicyRemote:
		h.Policy.Remote.serialize(&buf)
	default:
		buf.WriteByte(byte(len(h.Policy.Body) >> 8))
		buf.WriteByte(byte(len(h.Policy.Body)))
		buf.Write(h.Policy.Body)
	}
	buf.Write(h.Policy.Binding)
	buf.Write(h.EphemeralKey)
	return buf.Bytes()
}
