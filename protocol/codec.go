package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// LengthSize is the size of the length prefix that starts every frame.
	LengthSize = 4
	// CodesSize is the size of the category and action codes that follow the
	// length prefix. A declared length is never smaller than CodesSize.
	CodesSize = 8
	// HeaderSize is the number of bytes preceding the payload.
	HeaderSize = LengthSize + CodesSize

	// DefaultMaxFrameSize bounds the declared length of a frame when no
	// explicit limit is configured.
	DefaultMaxFrameSize = 1 << 20
)

var (
	// ErrProtocol is wrapped by every framing error. A framing error is not
	// recoverable in place and the connection carrying it must be dropped.
	ErrProtocol = errors.New("protocol violation")
	// ErrFrameTooLarge is returned when a frame declares a length beyond the
	// configured maximum.
	ErrFrameTooLarge = fmt.Errorf("%w: frame too large", ErrProtocol)
	// ErrFrameTooShort is returned when a frame declares a length that
	// cannot hold the category and action codes.
	ErrFrameTooShort = fmt.Errorf("%w: frame too short", ErrProtocol)
)

// Frame is one decoded protocol message.
type Frame struct {
	Category RequestCode
	Action   ActionCode
	Payload  string
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return fmt.Sprintf("%s.%s(%d bytes)", f.Category, f.Action, len(f.Payload))
}

// Encode builds the wire representation of a frame:
// length ‖ category ‖ action ‖ payload, all integers little-endian, where
// length counts every byte after itself.
//
// Parameters:
//   - category: The request category code
//   - action: The action code within the category
//   - payload: The UTF-8 payload
//
// Returns:
//   - The encoded frame
func Encode(category RequestCode, action ActionCode, payload string) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(CodesSize+len(payload)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(category))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(action))
	copy(buf[HeaderSize:], payload)
	return buf
}

// EncodeFrame is Encode applied to a Frame value.
func EncodeFrame(f Frame) []byte {
	return Encode(f.Category, f.Action, f.Payload)
}

// declaredLength validates the length prefix at the start of buf. buf must
// hold at least LengthSize bytes.
func declaredLength(buf []byte, maxFrameSize uint32) (uint32, error) {
	length := binary.LittleEndian.Uint32(buf[:LengthSize])
	if length < CodesSize {
		return 0, fmt.Errorf("%w: declared length %d", ErrFrameTooShort, length)
	}

	if maxFrameSize > 0 && length > maxFrameSize {
		return 0, fmt.Errorf("%w: declared length %d exceeds %d", ErrFrameTooLarge, length, maxFrameSize)
	}

	return length, nil
}

// DecodeFrame extracts the first complete frame from buf.
//
// Parameters:
//   - buf: Accumulated, not yet consumed bytes
//   - maxFrameSize: Largest acceptable declared length; 0 disables the check
//
// Returns:
//   - The decoded frame, valid only when n > 0
//   - n, the number of bytes the frame occupied; 0 when buf does not yet
//     hold a complete frame
//   - An error wrapping ErrProtocol if the length prefix is malformed
func DecodeFrame(buf []byte, maxFrameSize uint32) (Frame, int, error) {
	if len(buf) < LengthSize {
		return Frame{}, 0, nil
	}

	length, err := declaredLength(buf, maxFrameSize)
	if err != nil {
		return Frame{}, 0, err
	}

	total := LengthSize + int(length)
	if len(buf) < total {
		return Frame{}, 0, nil
	}

	return Frame{
		Category: RequestCode(binary.LittleEndian.Uint32(buf[4:8])),
		Action:   ActionCode(binary.LittleEndian.Uint32(buf[8:12])),
		Payload:  string(buf[HeaderSize:total]),
	}, total, nil
}

// Decode extracts every complete frame at the start of buf, in order. The
// payloads are copied, so buf may be reused once Decode returns.
//
// Parameters:
//   - buf: Accumulated, not yet consumed bytes
//   - maxFrameSize: Largest acceptable declared length; 0 disables the check
//
// Returns:
//   - The decoded frames (nil if none is complete)
//   - The number of bytes consumed by those frames; the caller must drop
//     exactly this prefix and keep the tail
//   - An error wrapping ErrProtocol on a malformed length prefix. Frames
//     decoded before the malformed one are still returned.
func Decode(buf []byte, maxFrameSize uint32) ([]Frame, int, error) {
	var frames []Frame
	consumed := 0

	for {
		f, n, err := DecodeFrame(buf[consumed:], maxFrameSize)
		if err != nil {
			return frames, consumed, err
		}

		if n == 0 {
			return frames, consumed, nil
		}

		frames = append(frames, f)
		consumed += n
	}
}
