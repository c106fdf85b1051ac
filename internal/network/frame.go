package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

// MaxFramePayload caps how much a single frame may declare. A peer
// announcing more is protocol-broken, not just slow.
const MaxFramePayload = 16 * 1024 * 1024

// frameHeaderSize is the length prefix: a 4-byte big-endian unsigned count
// of payload bytes.
const frameHeaderSize = 4

var ErrFrameTooLarge = errors.New("frame payload exceeds maximum size")

// WriteFrame writes one length-prefixed message frame: the 4-byte big-endian
// payload length followed by exactly that many bytes of canonical message
// encoding.
func WriteFrame(w io.Writer, msg types.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if len(payload) > MaxFramePayload {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads exactly one frame and decodes the message it carries. A
// connection closing mid-frame surfaces as io.EOF or io.ErrUnexpectedEOF,
// which callers treat as a normal peer departure.
func ReadFrame(r io.Reader) (types.Message, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return types.Message{}, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFramePayload {
		return types.Message{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return types.Message{}, err
	}
	return types.DecodeMessage(payload)
}
