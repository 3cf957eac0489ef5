package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"
)

func TestEncodeDecodeSendMessage(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	env := Envelope{
		ID:        "env-1",
		Type:      MessageTypeSendMessage,
		Timestamp: time.Now().UTC(),
		Payload:   SendMessageRequest{Sender: "carol", Receiver: "dave", Message: "hi"},
	}
	if err := NewEncoder(&buf).Encode(ctx, env); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := NewDecoder(&buf, 1024).Decode(ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != MessageTypeSendMessage {
		t.Fatalf("type = %q, want %q", got.Type, MessageTypeSendMessage)
	}

	var req SendMessageRequest
	if err := DecodePayload(got.Payload, &req); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if req.Sender != "carol" || req.Receiver != "dave" || req.Message != "hi" {
		t.Fatalf("payload = %+v", req)
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(context.Background(), Envelope{Type: MessageTypeGoOnline, Payload: "a-rather-long-username"}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, err := NewDecoder(&buf, 8).Decode(context.Background())
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeRejectsEmptyFrame(t *testing.T) {
	header := make([]byte, frameHeaderBytes)
	binary.BigEndian.PutUint32(header, 0)

	_, err := NewDecoder(bytes.NewReader(header), 0).Decode(context.Background())
	if !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("err = %v, want ErrEmptyFrame", err)
	}
}

func TestDecodeSkipsMalformedFrame(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	for _, raw := range []string{"not json", `{"type":"goOnline","timestamp":"yesterday","payload":"alice"}`} {
		header := make([]byte, frameHeaderBytes)
		binary.BigEndian.PutUint32(header, uint32(len(raw)))
		buf.Write(header)
		buf.WriteString(raw)
	}
	if err := NewEncoder(&buf).Encode(ctx, Envelope{Type: MessageTypeGoOnline, Payload: "alice"}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	dec := NewDecoder(&buf, 1024)
	for i := 0; i < 2; i++ {
		if _, err := dec.Decode(ctx); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("frame %d: err = %v, want ErrMalformedFrame", i, err)
		}
	}
	env, err := dec.Decode(ctx)
	if err != nil {
		t.Fatalf("decode after malformed frames: %v", err)
	}
	if env.Type != MessageTypeGoOnline || env.Payload != "alice" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	header := make([]byte, frameHeaderBytes)
	binary.BigEndian.PutUint32(header, 32)
	data := append(header, []byte(`{"type":`)...)

	_, err := NewDecoder(bytes.NewReader(data), 0).Decode(context.Background())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecodeCleanEOF(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil), 0).Decode(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestDecodePayloadNil(t *testing.T) {
	var username string
	if err := DecodePayload(nil, &username); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("err = %v, want ErrEmptyPayload", err)
	}
}
