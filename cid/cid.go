// Package cid encodes and decodes portal content identifiers.
//
// A CID names content by its digest, its size, and two one-byte tags: the
// structural type of the content and the hash algorithm that produced the
// digest. The binary form is
//
//	[type:1][hashType:1][hash:32][size:8, little-endian]
//
// and the text form is that buffer encoded as multibase base58btc (a
// leading 'z' followed by Bitcoin-alphabet base58).
//
// Older portals emitted a layout with the fixed prefix 0x26 0x1f in place of
// the type tags. Those bytes are exactly [TypeRaw] and [HashBlake3], so the
// legacy layout decodes through [Decode] unchanged.
package cid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/multiformats/go-multibase"
)

const (
	// HashSize is the length of a CID digest in bytes.
	HashSize = 32

	// EncodedSize is the length of the binary CID payload in bytes.
	EncodedSize = 2 + HashSize + 8
)

// Type names the structural kind of the referenced content.
type Type uint8

// Known content types.
const (
	TypeRaw             Type = 0x26
	TypeMetadataMedia   Type = 0xc5
	TypeMetadataWebApp  Type = 0x59
	TypeResolver        Type = 0x25
	TypeUserIdentity    Type = 0x77
	TypeBridge          Type = 0x3a
	TypeEncryptedStatic Type = 0xae
)

// Valid reports whether t is a known content type.
func (t Type) Valid() bool {
	switch t {
	case TypeRaw, TypeMetadataMedia, TypeMetadataWebApp, TypeResolver,
		TypeUserIdentity, TypeBridge, TypeEncryptedStatic:
		return true
	default:
		return false
	}
}

// String returns the string representation of the type.
func (t Type) String() string {
	switch t {
	case TypeRaw:
		return "raw"
	case TypeMetadataMedia:
		return "metadata-media"
	case TypeMetadataWebApp:
		return "metadata-webapp"
	case TypeResolver:
		return "resolver"
	case TypeUserIdentity:
		return "user-identity"
	case TypeBridge:
		return "bridge"
	case TypeEncryptedStatic:
		return "encrypted-static"
	default:
		return fmt.Sprintf("type(0x%02x)", uint8(t))
	}
}

// HashType names the algorithm that produced a CID digest.
type HashType uint8

// Known hash algorithms.
const (
	HashBlake3  HashType = 0x1f
	HashEd25519 HashType = 0xed
)

// Valid reports whether h is a known hash algorithm.
func (h HashType) Valid() bool {
	return h == HashBlake3 || h == HashEd25519
}

// String returns the string representation of the hash type.
func (h HashType) String() string {
	switch h {
	case HashBlake3:
		return "blake3"
	case HashEd25519:
		return "ed25519"
	default:
		return fmt.Sprintf("hash(0x%02x)", uint8(h))
	}
}

// CID is a content identifier. CIDs are comparable; two CIDs are equal when
// all four fields are equal.
type CID struct {
	Hash     [HashSize]byte
	Size     uint64
	Type     Type
	HashType HashType
}

// Undef is the zero CID. It is never produced by New or Decode.
var Undef CID

// New builds a CID from its parts, validating each of them.
func New(hash []byte, size uint64, t Type, ht HashType) (CID, error) {
	if len(hash) != HashSize {
		return Undef, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidHash, len(hash), HashSize)
	}
	if size == 0 {
		return Undef, ErrInvalidSize
	}
	if !t.Valid() {
		return Undef, fmt.Errorf("%w: 0x%02x", ErrUnknownType, uint8(t))
	}
	if !ht.Valid() {
		return Undef, fmt.Errorf("%w: 0x%02x", ErrUnknownHashType, uint8(ht))
	}
	c := CID{Size: size, Type: t, HashType: ht}
	copy(c.Hash[:], hash)
	return c, nil
}

// Encode returns the text form of a raw BLAKE3 CID.
func Encode(hash []byte, size uint64) (string, error) {
	return EncodeTyped(hash, size, TypeRaw, HashBlake3)
}

// EncodeHex is like Encode but takes the digest as a hex string.
func EncodeHex(hash string, size uint64) (string, error) {
	b, err := hex.DecodeString(hash)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	return Encode(b, size)
}

// EncodeTyped returns the text form of a CID with explicit tags.
func EncodeTyped(hash []byte, size uint64, t Type, ht HashType) (string, error) {
	c, err := New(hash, size, t, ht)
	if err != nil {
		return "", err
	}
	return c.encode()
}

// Decode parses the text form of a CID.
func Decode(s string) (CID, error) {
	enc, data, err := multibase.Decode(s)
	if err != nil {
		return Undef, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if enc != multibase.Base58BTC {
		return Undef, fmt.Errorf("%w: multibase prefix %q is not base58btc", ErrMalformed, rune(enc))
	}
	return FromBytes(data)
}

// MustDecode is like Decode but panics on error.
// It is intended for constants and tests.
func MustDecode(s string) CID {
	c, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return c
}

// FromBytes parses the binary form of a CID.
func FromBytes(b []byte) (CID, error) {
	if len(b) != EncodedSize {
		return Undef, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformed, len(b), EncodedSize)
	}
	t, ht := Type(b[0]), HashType(b[1])
	if !t.Valid() {
		return Undef, fmt.Errorf("%w: %w: 0x%02x", ErrMalformed, ErrUnknownType, b[0])
	}
	if !ht.Valid() {
		return Undef, fmt.Errorf("%w: %w: 0x%02x", ErrMalformed, ErrUnknownHashType, b[1])
	}
	c := CID{
		Size:     binary.LittleEndian.Uint64(b[2+HashSize:]),
		Type:     t,
		HashType: ht,
	}
	copy(c.Hash[:], b[2:2+HashSize])
	return c, nil
}

// Bytes returns the binary form of the CID.
func (c CID) Bytes() []byte {
	b := make([]byte, EncodedSize)
	b[0] = byte(c.Type)
	b[1] = byte(c.HashType)
	copy(b[2:], c.Hash[:])
	binary.LittleEndian.PutUint64(b[2+HashSize:], c.Size)
	return b
}

// String returns the text form of the CID, or "" for an invalid CID.
func (c CID) String() string {
	s, err := c.encode()
	if err != nil {
		return ""
	}
	return s
}

// HashHex returns the digest as lowercase hex.
func (c CID) HashHex() string {
	return hex.EncodeToString(c.Hash[:])
}

// Defined reports whether c is not the zero CID.
func (c CID) Defined() bool {
	return c != Undef
}

// Validate reports an error wrapping ErrMalformed if c has an unknown type,
// an unknown hash type or a zero size. The zero CID fails validation.
func (c CID) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %w: 0x%02x", ErrMalformed, ErrUnknownType, uint8(c.Type))
	}
	if !c.HashType.Valid() {
		return fmt.Errorf("%w: %w: 0x%02x", ErrMalformed, ErrUnknownHashType, uint8(c.HashType))
	}
	if c.Size == 0 {
		return fmt.Errorf("%w: %w", ErrMalformed, ErrInvalidSize)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (c CID) MarshalText() ([]byte, error) {
	s, err := c.encode()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CID) UnmarshalText(text []byte) error {
	parsed, err := Decode(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c CID) encode() (string, error) {
	if !c.Type.Valid() {
		return "", fmt.Errorf("%w: 0x%02x", ErrUnknownType, uint8(c.Type))
	}
	if !c.HashType.Valid() {
		return "", fmt.Errorf("%w: 0x%02x", ErrUnknownHashType, uint8(c.HashType))
	}
	if c.Size == 0 {
		return "", ErrInvalidSize
	}
	return multibase.Encode(multibase.Base58BTC, c.Bytes())
}
