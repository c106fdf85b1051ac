package network

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunar-bby/AgoraAI/internal/types"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := types.NewMessage(types.MessageRequest, "a1", "a2", map[string]interface{}{"q": "ping"}, "corr-1")

	require.NoError(t, WriteFrame(&buf, msg))

	decoded, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestFrameHeaderIsBigEndianLength(t *testing.T) {
	var buf bytes.Buffer
	msg := types.NewMessage(types.MessageEvent, "a1", "a2", nil, "")
	require.NoError(t, WriteFrame(&buf, msg))

	raw := buf.Bytes()
	require.Greater(t, len(raw), frameHeaderSize)
	declared := binary.BigEndian.Uint32(raw[:frameHeaderSize])
	assert.Equal(t, int(declared), len(raw)-frameHeaderSize)
}

func TestReadFrameMidFrameDisconnect(t *testing.T) {
	var buf bytes.Buffer
	msg := types.NewMessage(types.MessageEvent, "a1", "a2", map[string]interface{}{"k": "v"}, "")
	require.NoError(t, WriteFrame(&buf, msg))

	// Truncate inside the payload: the reader sees a peer disconnect.
	truncated := bytes.NewReader(buf.Bytes()[:frameHeaderSize+3])
	_, err := ReadFrame(truncated)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// Truncate inside the header.
	truncated = bytes.NewReader(buf.Bytes()[:2])
	_, err = ReadFrame(truncated)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameRejectsOversizedDeclaration(t *testing.T) {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], MaxFramePayload+1)

	_, err := ReadFrame(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
