// Package p2p implements the peer manager and gossip protocol: raw TCP connection management plus a length-prefixed framed
// message protocol.
package p2p

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/globalcoyn/globalcoyn/pkg/types"
)

// Magic numbers identify the network a frame belongs to.
const (
	MagicMainnet uint32 = 0xC01ECA1E
	MagicTestnet uint32 = 0xC01ECA17
	MagicDev     uint32 = 0xC01ECA1D
)

// ProtocolVersion is the current gossip protocol version, incremented on
// any breaking payload change.
const ProtocolVersion uint32 = 1

// maxFrameLen bounds a single frame's payload to guard against a hostile
// peer claiming an enormous length prefix.
const maxFrameLen = 16 * 1024 * 1024

// MessageType identifies a gossip frame's payload kind.
type MessageType uint8

const (
	MsgHello MessageType = iota + 1
	MsgInv
	MsgGetData
	MsgTx
	MsgBlock
	MsgGetHeaders
	MsgHeaders
	MsgGetPeers
	MsgPeers
	MsgPing
	MsgPong
)

func (t MessageType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgInv:
		return "INV"
	case MsgGetData:
		return "GETDATA"
	case MsgTx:
		return "TX"
	case MsgBlock:
		return "BLOCK"
	case MsgGetHeaders:
		return "GETHEADERS"
	case MsgHeaders:
		return "HEADERS"
	case MsgGetPeers:
		return "GETPEERS"
	case MsgPeers:
		return "PEERS"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Frame is a decoded gossip message: magic, type, and raw payload bytes.
type Frame struct {
	Magic   uint32
	Type    MessageType
	Payload []byte
}

// WriteFrame encodes and writes a single frame: [4-byte magic][4-byte
// length][1-byte type][payload].
func WriteFrame(w io.Writer, magic uint32, typ MessageType, payload []byte) error {
	if len(payload) > maxFrameLen {
		return fmt.Errorf("payload too large: %d bytes", len(payload))
	}
	header := make([]byte, 9)
	binary.BigEndian.PutUint32(header[0:4], magic)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	header[8] = byte(typ)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads and decodes a single frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, 9)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	magic := binary.BigEndian.Uint32(header[0:4])
	length := binary.BigEndian.Uint32(header[4:8])
	if length > maxFrameLen {
		return nil, fmt.Errorf("frame length %d exceeds max %d", length, maxFrameLen)
	}
	typ := MessageType(header[8])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return &Frame{Magic: magic, Type: typ, Payload: payload}, nil
}

// HelloPayload is the handshake tuple exchanged on connect.
type HelloPayload struct {
	ProtocolVersion uint32     `json:"protocol_version"`
	NetworkID       string     `json:"network_id"`
	ChainTipHeight  uint64     `json:"chain_tip_height"`
	ChainTipHash    types.Hash `json:"chain_tip_hash"`
	ListenPort      int        `json:"listen_port"`
	Nonce           uint64     `json:"nonce"`
}

// InvKind identifies what an inventory entry refers to.
type InvKind uint8

const (
	InvTx InvKind = iota + 1
	InvBlock
)

// InvItem is one entry of an INV/GETDATA payload.
type InvItem struct {
	Kind InvKind    `json:"kind"`
	Hash types.Hash `json:"hash"`
}

// InvPayload lists items being announced or requested.
type InvPayload struct {
	Items []InvItem `json:"items"`
}

// GetHeadersPayload requests headers between two markers.
type GetHeadersPayload struct {
	FromHash types.Hash `json:"from_hash"`
	StopHash types.Hash `json:"stop_hash"`
	Max      int        `json:"max"`
}

// HeaderEntry is one block header as sent over the wire.
type HeaderEntry struct {
	Index          uint64     `json:"index"`
	PreviousHash   types.Hash `json:"previous_hash"`
	Timestamp      uint64     `json:"timestamp"`
	MerkleRoot     types.Hash `json:"merkle_root"`
	Nonce          uint64     `json:"nonce"`
	DifficultyBits uint32     `json:"difficulty_bits"`
}

// HeadersPayload answers a GETHEADERS request.
type HeadersPayload struct {
	Headers []HeaderEntry `json:"headers"`
}

// PeerEntry is one address/port/last-seen triple as sent over the wire.
type PeerEntry struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LastSeen int64  `json:"last_seen"`
}

// PeersPayload answers a GETPEERS request.
type PeersPayload struct {
	Peers []PeerEntry `json:"peers"`
}

// PingPayload/PongPayload carry a liveness nonce.
type PingPayload struct {
	Nonce uint64 `json:"nonce"`
}

type PongPayload struct {
	Nonce uint64 `json:"nonce"`
}

func encodePayload(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("p2p: marshal payload: %v", err))
	}
	return data
}

func decodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
