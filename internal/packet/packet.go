// Package packet implements the binary framing carried over the upload
// channel: a one-byte kind discriminant followed by a binary chunk body, a
// JSON envelope, or (for the Next ack) nothing at all.
package packet

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Kind is the one-byte discriminant at the start of every frame.
type Kind uint8

const (
	KindBinary Kind = 0
	KindJSON   Kind = 1
	KindNext   Kind = 2
)

// Tag is the one-byte discriminant inside a JSON envelope.
type Tag uint8

const (
	TagConnectionAccepted Tag = 0
	TagInitializeUpload   Tag = 1
	TagReadyForUpload     Tag = 2
	TagSetChunkIndex      Tag = 3
	TagUploadComplete      Tag = 4
)

// ErrorCode enumerates the ways decoding a frame can fail.
type ErrorCode int

const (
	MissingBytes ErrorCode = iota
	InvalidByteAccess
	InvalidPacketType
	InvalidDataType
	JSONError
)

func (c ErrorCode) String() string {
	switch c {
	case MissingBytes:
		return "MissingBytes"
	case InvalidByteAccess:
		return "InvalidByteAccess"
	case InvalidPacketType:
		return "InvalidPacketType"
	case InvalidDataType:
		return "InvalidDataType"
	case JSONError:
		return "JsonError"
	default:
		return "Unknown"
	}
}

// PacketError is returned by Decode.
type PacketError struct {
	Code  ErrorCode
	Cause error
}

func (e *PacketError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("packet: %s: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("packet: %s", e.Code)
}

func (e *PacketError) Unwrap() error { return e.Cause }

func newErr(code ErrorCode) *PacketError               { return &PacketError{Code: code} }
func wrapErr(code ErrorCode, cause error) *PacketError { return &PacketError{Code: code, Cause: cause} }

// BinaryChunk is the payload of a kind-0 packet.
type BinaryChunk struct {
	Idx  uint64
	Data []byte
}

// InitializeUpload is the JSON payload of tag 1.
type InitializeUpload struct {
	Name      string `json:"name"`
	Size      uint64 `json:"size"`
	ChunkSize uint64 `json:"chunk_size"`
}

// JSONChunkIndex is the JSON payload shared by tags 2 and 3.
type JSONChunkIndex struct {
	ChunkIndex uint64 `json:"chunk_index"`
}

// UploadComplete is the JSON payload of tag 4: the full File record, opaque
// to this package. Callers supply/consume the marshalled form directly so
// packet does not import internal/index.
type UploadComplete struct {
	File json.RawMessage
}

// Packet is the decoded form of one frame.
type Packet struct {
	Kind Kind

	// Binary is populated when Kind == KindBinary.
	Binary BinaryChunk

	// JSON fields: exactly one is meaningful, selected by Tag, when
	// Kind == KindJSON.
	Tag              Tag
	InitUpload       InitializeUpload
	ReadyForUpload   JSONChunkIndex
	SetChunkIndex    JSONChunkIndex
	UploadComplete   UploadComplete
}

// Next is the singleton Kind-2 packet.
var Next = Packet{Kind: KindNext}

// Encode serialises p into its wire form.
func Encode(p Packet) ([]byte, error) {
	switch p.Kind {
	case KindBinary:
		body := make([]byte, 8+8+len(p.Binary.Data))
		binary.BigEndian.PutUint64(body[0:8], p.Binary.Idx)
		binary.BigEndian.PutUint64(body[8:16], uint64(len(p.Binary.Data)))
		copy(body[16:], p.Binary.Data)
		return append([]byte{byte(KindBinary)}, body...), nil

	case KindJSON:
		out := []byte{byte(KindJSON), byte(p.Tag)}
		var payload any
		switch p.Tag {
		case TagConnectionAccepted:
			return out, nil
		case TagInitializeUpload:
			payload = p.InitUpload
		case TagReadyForUpload:
			payload = p.ReadyForUpload
		case TagSetChunkIndex:
			payload = p.SetChunkIndex
		case TagUploadComplete:
			body, err := json.Marshal(p.UploadComplete.File)
			if err != nil {
				return nil, wrapErr(JSONError, err)
			}
			return append(out, body...), nil
		default:
			return nil, newErr(InvalidDataType)
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, wrapErr(JSONError, err)
		}
		return append(out, body...), nil

	case KindNext:
		return []byte{byte(KindNext)}, nil

	default:
		return nil, newErr(InvalidPacketType)
	}
}

// Decode parses buf into a Packet.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < 1 {
		return Packet{}, newErr(MissingBytes)
	}
	kind := Kind(buf[0])
	rest := buf[1:]

	switch kind {
	case KindBinary:
		if len(rest) < 16 {
			return Packet{}, newErr(MissingBytes)
		}
		idx := binary.BigEndian.Uint64(rest[0:8])
		size := binary.BigEndian.Uint64(rest[8:16])
		payload := rest[16:]
		if uint64(len(payload)) != size {
			return Packet{}, newErr(InvalidByteAccess)
		}
		data := make([]byte, len(payload))
		copy(data, payload)
		return Packet{Kind: KindBinary, Binary: BinaryChunk{Idx: idx, Data: data}}, nil

	case KindJSON:
		if len(rest) < 1 {
			return Packet{}, newErr(MissingBytes)
		}
		tag := Tag(rest[0])
		body := rest[1:]
		p := Packet{Kind: KindJSON, Tag: tag}
		switch tag {
		case TagConnectionAccepted:
			return p, nil
		case TagInitializeUpload:
			if err := json.Unmarshal(body, &p.InitUpload); err != nil {
				return Packet{}, wrapErr(JSONError, err)
			}
		case TagReadyForUpload:
			if err := json.Unmarshal(body, &p.ReadyForUpload); err != nil {
				return Packet{}, wrapErr(JSONError, err)
			}
		case TagSetChunkIndex:
			if err := json.Unmarshal(body, &p.SetChunkIndex); err != nil {
				return Packet{}, wrapErr(JSONError, err)
			}
		case TagUploadComplete:
			raw := make(json.RawMessage, len(body))
			copy(raw, body)
			p.UploadComplete = UploadComplete{File: raw}
		default:
			return Packet{}, newErr(InvalidDataType)
		}
		return p, nil

	case KindNext:
		return Packet{Kind: KindNext}, nil

	default:
		return Packet{}, newErr(InvalidPacketType)
	}
}

// NewBinaryChunk constructs a kind-0 packet.
func NewBinaryChunk(idx uint64, data []byte) Packet {
	return Packet{Kind: KindBinary, Binary: BinaryChunk{Idx: idx, Data: data}}
}

// NewConnectionAccepted constructs the tag-0 envelope.
func NewConnectionAccepted() Packet {
	return Packet{Kind: KindJSON, Tag: TagConnectionAccepted}
}

// NewInitializeUpload constructs the tag-1 envelope.
func NewInitializeUpload(v InitializeUpload) Packet {
	return Packet{Kind: KindJSON, Tag: TagInitializeUpload, InitUpload: v}
}

// NewReadyForUpload constructs the tag-2 envelope.
func NewReadyForUpload(chunkIndex uint64) Packet {
	return Packet{Kind: KindJSON, Tag: TagReadyForUpload, ReadyForUpload: JSONChunkIndex{ChunkIndex: chunkIndex}}
}

// NewSetChunkIndex constructs the tag-3 envelope.
func NewSetChunkIndex(chunkIndex uint64) Packet {
	return Packet{Kind: KindJSON, Tag: TagSetChunkIndex, SetChunkIndex: JSONChunkIndex{ChunkIndex: chunkIndex}}
}

// NewUploadComplete constructs the tag-4 envelope from an already-marshalled
// File record.
func NewUploadComplete(file json.RawMessage) Packet {
	return Packet{Kind: KindJSON, Tag: TagUploadComplete, UploadComplete: UploadComplete{File: file}}
}
