package packet_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/zynqcloud/filedrop/internal/packet"
)

func TestRoundTrip(t *testing.T) {
	file, _ := json.Marshal(map[string]any{"id": "abc", "size": 11})

	cases := []packet.Packet{
		packet.NewBinaryChunk(0, []byte("hello world")),
		packet.NewBinaryChunk(7, nil),
		packet.Next,
		packet.NewConnectionAccepted(),
		packet.NewInitializeUpload(packet.InitializeUpload{Name: "a.txt", Size: 11, ChunkSize: 16777216}),
		packet.NewReadyForUpload(3),
		packet.NewSetChunkIndex(1),
		packet.NewUploadComplete(file),
	}

	for i, p := range cases {
		buf, err := packet.Encode(p)
		if err != nil {
			t.Fatalf("case %d: Encode: %v", i, err)
		}
		got, err := packet.Decode(buf)
		if err != nil {
			t.Fatalf("case %d: Decode: %v", i, err)
		}
		if got.Kind != p.Kind {
			t.Errorf("case %d: Kind = %v, want %v", i, got.Kind, p.Kind)
		}
		switch p.Kind {
		case packet.KindBinary:
			if got.Binary.Idx != p.Binary.Idx || !bytes.Equal(got.Binary.Data, p.Binary.Data) {
				t.Errorf("case %d: Binary mismatch: got %+v, want %+v", i, got.Binary, p.Binary)
			}
		case packet.KindJSON:
			if got.Tag != p.Tag {
				t.Errorf("case %d: Tag = %v, want %v", i, got.Tag, p.Tag)
			}
			switch p.Tag {
			case packet.TagInitializeUpload:
				if got.InitUpload != p.InitUpload {
					t.Errorf("case %d: InitUpload = %+v, want %+v", i, got.InitUpload, p.InitUpload)
				}
			case packet.TagReadyForUpload:
				if got.ReadyForUpload != p.ReadyForUpload {
					t.Errorf("case %d: ReadyForUpload = %+v, want %+v", i, got.ReadyForUpload, p.ReadyForUpload)
				}
			case packet.TagSetChunkIndex:
				if got.SetChunkIndex != p.SetChunkIndex {
					t.Errorf("case %d: SetChunkIndex = %+v, want %+v", i, got.SetChunkIndex, p.SetChunkIndex)
				}
			case packet.TagUploadComplete:
				if !bytes.Equal(got.UploadComplete.File, p.UploadComplete.File) {
					t.Errorf("case %d: UploadComplete mismatch", i)
				}
			}
		}
	}
}

func TestDecodeTruncation(t *testing.T) {
	full, err := packet.Encode(packet.NewBinaryChunk(5, []byte("abcdef")))
	if err != nil {
		t.Fatal(err)
	}

	// Truncating anywhere inside the fixed header must fail with
	// MissingBytes; truncating inside the payload (size header intact,
	// but fewer bytes than declared) fails with InvalidByteAccess.
	for cut := 0; cut < len(full); cut++ {
		_, err := packet.Decode(full[:cut])
		if err == nil {
			t.Errorf("Decode(truncated to %d bytes): expected error, got nil", cut)
			continue
		}
		perr, ok := err.(*packet.PacketError)
		if !ok {
			t.Errorf("Decode(truncated to %d bytes): error is not *PacketError: %v", cut, err)
			continue
		}
		if perr.Code != packet.MissingBytes && perr.Code != packet.InvalidByteAccess {
			t.Errorf("Decode(truncated to %d bytes): code = %v, want MissingBytes or InvalidByteAccess", cut, perr.Code)
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	_, err := packet.Decode(nil)
	perr, ok := err.(*packet.PacketError)
	if !ok || perr.Code != packet.MissingBytes {
		t.Fatalf("Decode(nil) = %v, want MissingBytes", err)
	}
}

func TestDecodeInvalidKind(t *testing.T) {
	_, err := packet.Decode([]byte{99})
	perr, ok := err.(*packet.PacketError)
	if !ok || perr.Code != packet.InvalidPacketType {
		t.Fatalf("Decode(kind=99) = %v, want InvalidPacketType", err)
	}
}

func TestDecodeInvalidTag(t *testing.T) {
	_, err := packet.Decode([]byte{byte(packet.KindJSON), 99})
	perr, ok := err.(*packet.PacketError)
	if !ok || perr.Code != packet.InvalidDataType {
		t.Fatalf("Decode(tag=99) = %v, want InvalidDataType", err)
	}
}
