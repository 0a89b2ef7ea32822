package p2p

import (
	"bytes"
	"testing"

	"github.com/globalcoyn/globalcoyn/pkg/types"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte(`{"hello":"world"}`)
	if err := WriteFrame(&buf, MagicTestnet, MsgHello, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Magic != MagicTestnet {
		t.Errorf("Magic = %x, want %x", frame.Magic, MagicTestnet)
	}
	if frame.Type != MsgHello {
		t.Errorf("Type = %v, want MsgHello", frame.Type)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("Payload = %q, want %q", frame.Payload, payload)
	}
}

func TestWriteReadFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, MagicDev, MsgGetPeers, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(frame.Payload) != 0 {
		t.Errorf("Payload = %v, want empty", frame.Payload)
	}
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 9)
	header[4], header[5], header[6], header[7] = 0xFF, 0xFF, 0xFF, 0xFF // length far exceeds maxFrameLen
	buf.Write(header)

	if _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected ReadFrame to reject an oversized length prefix")
	}
}

func TestHelloPayload_EncodeDecode(t *testing.T) {
	hello := HelloPayload{
		ProtocolVersion: ProtocolVersion,
		NetworkID:       "testnet",
		ChainTipHeight:  42,
		ChainTipHash:    types.Hash{1, 2, 3},
		ListenPort:      19333,
		Nonce:           9999,
	}
	var decoded HelloPayload
	if err := decodePayload(encodePayload(hello), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != hello {
		t.Errorf("decoded = %+v, want %+v", decoded, hello)
	}
}

func TestMultipleFrames_SequentialRead(t *testing.T) {
	var buf bytes.Buffer
	WriteFrame(&buf, MagicMainnet, MsgPing, encodePayload(PingPayload{Nonce: 1}))
	WriteFrame(&buf, MagicMainnet, MsgPong, encodePayload(PongPayload{Nonce: 1}))

	f1, err := ReadFrame(&buf)
	if err != nil || f1.Type != MsgPing {
		t.Fatalf("first frame: %v, %+v", err, f1)
	}
	f2, err := ReadFrame(&buf)
	if err != nil || f2.Type != MsgPong {
		t.Fatalf("second frame: %v, %+v", err, f2)
	}
}
