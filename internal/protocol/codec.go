package protocol

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const frameHeaderBytes = 4

var (
	// ErrEmptyFrame reports a frame header announcing zero bytes.
	ErrEmptyFrame = errors.New("frame length zero")
	// ErrFrameTooLarge reports a frame above the decoder limit.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrMalformedFrame reports a complete frame that does not hold an
	// envelope. The stream stays aligned and the next frame can be read.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Encoder writes envelopes with a length-prefixed JSON frame.
// It is safe for concurrent use.
type Encoder struct {
	mu     sync.Mutex
	writer io.Writer
}

// Decoder reads envelopes with a length-prefixed JSON frame.
type Decoder struct {
	reader   *bufio.Reader
	maxBytes int
}

// NewEncoder creates a new encoder for the given writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{writer: w}
}

// NewDecoder creates a new decoder for the given reader. A non-positive
// maxBytes disables the frame size check.
func NewDecoder(r io.Reader, maxBytes int) *Decoder {
	return &Decoder{reader: bufio.NewReader(r), maxBytes: maxBytes}
}

// Encode writes the envelope to the underlying writer.
func (e *Encoder) Encode(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	frame := make([]byte, frameHeaderBytes+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[frameHeaderBytes:], data)

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.writer.Write(frame)
	return err
}

// Decode reads the next envelope from the stream.
func (d *Decoder) Decode(ctx context.Context) (Envelope, error) {
	var env Envelope

	header := make([]byte, frameHeaderBytes)
	if err := d.readFull(ctx, header); err != nil {
		return env, err
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return env, fmt.Errorf("%w: %w", ErrMalformedFrame, ErrEmptyFrame)
	}
	if d.maxBytes > 0 && int64(length) > int64(d.maxBytes) {
		return env, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, length, d.maxBytes)
	}

	payload := make([]byte, length)
	if err := d.readFull(ctx, payload); err != nil {
		return env, err
	}

	return UnmarshalEnvelope(payload)
}

// UnmarshalEnvelope parses one JSON envelope. Errors wrap ErrMalformedFrame.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return env, nil
}

func (d *Decoder) readFull(ctx context.Context, buf []byte) error {
	read := 0
	for read < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := d.reader.Read(buf[read:])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) && read > 0 && read < len(buf) {
				return io.ErrUnexpectedEOF
			}
			if read == len(buf) {
				return nil
			}
			return err
		}
	}
	return nil
}
