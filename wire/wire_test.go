package wire

import "testing"

func TestRoundTripHave(t *testing.T) {
	pkt := EncodePacket(42, &Have{Start: 3, End: 9})
	got, err := DecodePacket(pkt, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DestChannel != 42 {
		t.Fatalf("dest channel = %d, want 42", got.DestChannel)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(got.Messages))
	}
	h, ok := got.Messages[0].(*Have)
	if !ok {
		t.Fatalf("message type = %T, want *Have", got.Messages[0])
	}
	if h.Start != 3 || h.End != 9 {
		t.Fatalf("have = (%d,%d), want (3,9)", h.Start, h.End)
	}
}

func TestRoundTripData(t *testing.T) {
	payload := []byte("hello chunk")
	pkt := EncodePacket(1, &Data{Start: 7, End: 7, TimestampUs: 123456, Payload: payload})
	got, err := DecodePacket(pkt, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d := got.Messages[0].(*Data)
	if d.Start != 7 || d.End != 7 || d.TimestampUs != 123456 {
		t.Fatalf("unexpected data header: %+v", d)
	}
	if string(d.Payload) != string(payload) {
		t.Fatalf("payload = %q, want %q", d.Payload, payload)
	}
}

func TestHandshakeRoundTripWithOptions(t *testing.T) {
	ver := uint8(1)
	minVer := uint8(1)
	method := uint8(ChunkAddressingMethodConst)
	csize := uint32(1024)
	swarmID := []byte{0xaa, 0xbb, 0xcc}
	uuid := make([]byte, 16)
	for i := range uuid {
		uuid[i] = byte(i)
	}
	opts := Options{
		SwarmVersion:          &ver,
		MinVersion:            &minVer,
		SwarmID:               swarmID,
		ChunkAddressingMethod: &method,
		ChunkSize:             &csize,
		PeerUUID:              uuid,
	}
	pkt := EncodePacket(0, &Handshake{SourceChannel: 99, Options: opts})
	got, err := DecodePacket(pkt, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	hs := got.Messages[0].(*Handshake)
	if hs.SourceChannel != 99 {
		t.Fatalf("source channel = %d, want 99", hs.SourceChannel)
	}
	if hs.Options.ChunkSize == nil || *hs.Options.ChunkSize != 1024 {
		t.Fatalf("chunk size option missing/incorrect: %+v", hs.Options.ChunkSize)
	}
	if string(hs.Options.SwarmID) != string(swarmID) {
		t.Fatalf("swarm id = %x, want %x", hs.Options.SwarmID, swarmID)
	}
	if string(hs.Options.PeerUUID) != string(uuid) {
		t.Fatalf("peer uuid mismatch")
	}
}

func TestGoodbyeDetection(t *testing.T) {
	pkt := BuildGoodbye(5, 1, 1)
	got, err := DecodePacket(pkt, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Goodbye {
		t.Fatalf("expected Goodbye = true")
	}
	hs := got.Messages[0].(*Handshake)
	if hs.SourceChannel != 0 {
		t.Fatalf("goodbye handshake must carry source_channel = 0, got %d", hs.SourceChannel)
	}
}

func TestKeepaliveIsNotAnError(t *testing.T) {
	pkt := EncodePacket(7)
	got, err := DecodePacket(pkt, 0)
	if err != nil {
		t.Fatalf("keepalive packet should parse without error: %v", err)
	}
	if len(got.Messages) != 0 {
		t.Fatalf("keepalive should carry no messages, got %d", len(got.Messages))
	}
}

func TestMalformedMissingEndOfOptions(t *testing.T) {
	// A HANDSHAKE body with no terminator: source channel only.
	body := make([]byte, 4)
	data := append([]byte{0, 0, 0, 0}, byte(MsgHandshake))
	data = append(data, body...)
	if _, err := DecodePacket(data, 0); err == nil {
		t.Fatalf("expected MalformedMessage for missing end-of-options")
	}
}

func TestMalformedTruncatedLength(t *testing.T) {
	data := []byte{0, 0, 0, 0, byte(MsgRequest), 0, 0}
	if _, err := DecodePacket(data, 0); err == nil {
		t.Fatalf("expected MalformedMessage for truncated REQUEST")
	}
}

const ChunkAddressingMethodConst = 2
