package bmp

import (
	"encoding/binary"
	"fmt"
)

// Frame is one BMP message sliced off a byte stream: the common header
// fields plus the exact body bytes the header's length declares. Raw holds
// the whole message (header included) for hashing and diagnostics.
type Frame struct {
	Version uint8
	MsgType uint8
	Body    []byte
	Raw     []byte
}

// ReadFrame parses the 6-byte common header at the start of data and slices
// off one complete message. It returns the frame and the total number of
// bytes consumed (header + body).
func ReadFrame(data []byte) (Frame, int, error) {
	if len(data) < CommonHeaderSize {
		return Frame{}, 0, &TruncatedMessageError{What: "common header", Need: CommonHeaderSize, Have: len(data)}
	}

	version := data[0]
	if version != BMPVersion {
		return Frame{}, 0, fmt.Errorf("bmp: unsupported version %d (expected %d)", version, BMPVersion)
	}

	msgLength := binary.BigEndian.Uint32(data[1:5])
	msgType := data[5]

	if msgLength < uint32(CommonHeaderSize) {
		return Frame{}, 0, fmt.Errorf("bmp: declared msg_length %d smaller than common header size %d", msgLength, CommonHeaderSize)
	}
	if uint64(msgLength) > uint64(len(data)) {
		return Frame{}, 0, &TruncatedMessageError{What: "message body", Need: int(msgLength), Have: len(data)}
	}

	return Frame{
		Version: version,
		MsgType: msgType,
		Body:    data[CommonHeaderSize:msgLength],
		Raw:     data[:msgLength],
	}, int(msgLength), nil
}

// SplitStream slices all complete BMP messages off raw bytes. A collector
// feed may bundle several messages in one TCP read or broker record, and a
// partial message may trail the last complete one; trailing partial bytes
// are not an error. Returns an error only when no message could be read at
// all.
func SplitStream(data []byte) ([]Frame, error) {
	var frames []Frame
	offset := 0
	for offset < len(data) {
		frame, consumed, err := ReadFrame(data[offset:])
		if err != nil {
			break
		}
		frames = append(frames, frame)
		offset += consumed
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("bmp: no valid messages found in %d bytes", len(data))
	}
	return frames, nil
}
