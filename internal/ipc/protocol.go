// ABOUTME: Wire format for the hearthd socket: little-endian u32 length prefix plus JSON
// ABOUTME: Defines the request/response envelopes and the reserved control queries

package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Reserved queries answered by the connection handler itself.
const (
	PingQuery         = "__PING__"
	ListSessionsQuery = "__LIST_SESSIONS__"

	// PongResponse answers PingQuery.
	PongResponse = "PONG"
)

// DefaultMaxFrameBytes caps a frame payload when no limit is configured.
const DefaultMaxFrameBytes = 16 << 20

// headerSize is the length prefix size in bytes.
const headerSize = 4

// ErrFrameTooLarge is returned when a frame announces a payload above the limit.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Request is a client query. A nil SessionID asks for a new session.
type Request struct {
	Query     string  `json:"query"`
	SessionID *string `json:"session_id"`
}

// Response answers a Request. SessionID and Error encode as null when unset.
type Response struct {
	Response  string  `json:"response"`
	SessionID *string `json:"session_id"`
	Error     *string `json:"error"`
}

// DecodeRequest parses a request payload. The query field is required.
func DecodeRequest(data []byte) (Request, error) {
	var raw struct {
		Query     *string `json:"query"`
		SessionID *string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, fmt.Errorf("decoding request: %w", err)
	}
	if raw.Query == nil {
		return Request{}, fmt.Errorf("decoding request: missing query")
	}
	return Request{Query: *raw.Query, SessionID: raw.SessionID}, nil
}

// ReadFrame reads one length-prefixed payload. A non-positive maxBytes means
// DefaultMaxFrameBytes. A clean EOF before the header is returned as io.EOF.
func ReadFrame(r io.Reader, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(header[:])
	if uint64(n) > uint64(maxBytes) {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, n, maxBytes)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload with its length prefix in a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[headerSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// stringPtr returns a pointer to a copy of s.
func stringPtr(s string) *string {
	return &s
}
