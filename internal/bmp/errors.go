package bmp

import "fmt"

// UnknownPeerTypeError reports a per-peer header whose peer type field is
// neither Global Instance (0) nor L3 VPN Instance (1).
type UnknownPeerTypeError struct {
	Type uint8
}

func (e *UnknownPeerTypeError) Error() string {
	return fmt.Sprintf("bmp: unknown peer type %d", e.Type)
}

// UnknownPeerFlagError reports a per-peer header flags octet with reserved
// bits set. Only the V (0x80) and L (0x40) bits are defined.
type UnknownPeerFlagError struct {
	Flags uint8
}

func (e *UnknownPeerFlagError) Error() string {
	return fmt.Sprintf("bmp: unknown peer flags 0x%02x", e.Flags)
}

// UnknownMessageTypeError reports a BMP message type outside 0-5.
type UnknownMessageTypeError struct {
	Type uint8
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("bmp: unknown message type %d", e.Type)
}

// MalformedTLVError reports a TLV stream that ends mid-entry: fewer than 4
// header bytes remaining, or a declared length exceeding the remaining bytes.
type MalformedTLVError struct {
	Offset int
	Need   int
	Have   int
}

func (e *MalformedTLVError) Error() string {
	return fmt.Sprintf("bmp: malformed TLV at offset %d (need %d bytes, have %d)", e.Offset, e.Need, e.Have)
}

// TruncatedMessageError reports a fixed-layout region shorter than the wire
// format requires.
type TruncatedMessageError struct {
	What string
	Need int
	Have int
}

func (e *TruncatedMessageError) Error() string {
	return fmt.Sprintf("bmp: truncated %s (need %d bytes, have %d)", e.What, e.Need, e.Have)
}

// UnsupportedEmbeddedTypeError reports an embedded BGP message type inside a
// Route Monitoring message that this decoder does not handle.
type UnsupportedEmbeddedTypeError struct {
	BGPType uint8
}

func (e *UnsupportedEmbeddedTypeError) Error() string {
	return fmt.Sprintf("bmp: unsupported embedded BGP message type %d", e.BGPType)
}

// EmbeddedDecodeError wraps a failure from the BGP codec while decoding a
// PDU embedded in a BMP message. Raw holds the undecoded bytes so callers
// can retain them for diagnostics.
type EmbeddedDecodeError struct {
	BGPType uint8
	Raw     []byte
	Err     error
}

func (e *EmbeddedDecodeError) Error() string {
	return fmt.Sprintf("bmp: embedded BGP message (type %d) decode failed: %v", e.BGPType, e.Err)
}

func (e *EmbeddedDecodeError) Unwrap() error {
	return e.Err
}
