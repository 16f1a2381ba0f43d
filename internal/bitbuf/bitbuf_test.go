package bitbuf

import "testing"

func TestCaptureBitsWithinByte(t *testing.T) {
	buf := []byte{0b10110100}
	if got := CaptureBits(buf, 0, 3); got != 0b1011 {
		t.Fatalf("got %b want 1011", got)
	}
	if got := CaptureBits(buf, 4, 7); got != 0b0100 {
		t.Fatalf("got %b want 0100", got)
	}
}

func TestCaptureBitsAcrossBytes(t *testing.T) {
	buf := []byte{0b00000001, 0b10000000}
	// bits 7..8 span the byte boundary: low bit of byte0, high bit of byte1.
	if got := CaptureBits(buf, 7, 8); got != 0b11 {
		t.Fatalf("got %b want 11", got)
	}
}

func TestEmplaceBitsWithinByte(t *testing.T) {
	buf := make([]byte, 1)
	EmplaceBits(buf, 2, 5, 0b1010)
	if buf[0] != 0b00101000 {
		t.Fatalf("got %08b want 00101000", buf[0])
	}
}

func TestEmplaceBitsAcrossBytes(t *testing.T) {
	buf := make([]byte, 2)
	EmplaceBits(buf, 6, 9, 0b1101)
	// bits 6,7 are the low 2 bits of byte0; bits 8,9 are the high 2 bits of byte1.
	if buf[0] != 0b00000011 || buf[1] != 0b01000000 {
		t.Fatalf("got %08b %08b", buf[0], buf[1])
	}
}

func TestCaptureEmplaceRoundtrip(t *testing.T) {
	buf := make([]byte, 4)
	EmplaceBits(buf, 3, 17, 0x1234&((1<<15)-1))
	got := CaptureBits(buf, 3, 17)
	want := uint32(0x1234) & ((1 << 15) - 1)
	if got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestReaderAlignment(t *testing.T) {
	r := NewReader([]byte{0xFF, 0x00})
	if !r.Aligned() {
		t.Fatalf("expected aligned at start")
	}
	if _, err := r.ReadBits(3); err != nil {
		t.Fatalf("ReadBits: %v", err)
	}
	if r.Aligned() {
		t.Fatalf("expected not aligned after reading 3 bits")
	}
	r.AlignToByte()
	if !r.Aligned() {
		t.Fatalf("expected aligned after AlignToByte")
	}
	if r.Pos() != 8 {
		t.Fatalf("expected pos 8, got %d", r.Pos())
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadBytes(2); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestReaderNotAligned(t *testing.T) {
	r := NewReader([]byte{0xFF})
	if _, err := r.ReadBits(1); err != nil {
		t.Fatalf("ReadBits: %v", err)
	}
	if _, err := r.ReadBytes(1); err != ErrNotAligned {
		t.Fatalf("expected ErrNotAligned, got %v", err)
	}
}

func TestWriterReaderRoundtripBytes(t *testing.T) {
	w := NewWriter()
	if err := w.WriteBytes([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	r := NewReader(w.Bytes())
	got, err := r.ReadBytes(2)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if got[0] != 0xAA || got[1] != 0xBB {
		t.Fatalf("got %v", got)
	}
}
