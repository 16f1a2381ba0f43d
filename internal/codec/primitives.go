package codec

import (
	"encoding/binary"

	"elpp-gateway/internal/bitbuf"
)

// Kind names one of the primitive wire types defined by the ELPP codec.
type Kind int

const (
	U8 Kind = iota
	U16
	U32
	VarUint32
	VarInt32
	Bitfield
	Name
	FixedBytes
	DynBytes
)

// Args carries the per-leaf arguments a primitive needs. Only the fields
// relevant to the leaf's Kind are meaningful.
type Args struct {
	Sign  bool // Bitfield: sign-extend
	IBits int  // Bitfield: integer bits
	FBits int  // Bitfield: fractional bits
	N     int  // FixedBytes: byte count
}

// TotalBits returns the bit width of a Bitfield leaf's wire run.
func (a Args) TotalBits() int { return a.IBits + a.FBits }

// Value is one decoded (or to-be-encoded) primitive output. Which of
// Int/Float/Bytes is meaningful is selected by Kind: Bitfield decodes set both
// Int (the raw run) and Float (Int / 2^FBits), and Bitfield encodes read Int.
type Value struct {
	Name  string
	Kind  Kind
	Int   int64
	Float float64
	Bytes []byte
}

const maxVarintBytes = 5

// decodeLeaf dispatches a single primitive decode against r, per leaf.
func decodeLeaf(leaf Leaf, r *bitbuf.Reader) (Value, error) {
	v := Value{Name: leaf.Name, Kind: leaf.Kind}
	switch leaf.Kind {
	case U8:
		b, err := r.ReadBytes(1)
		if err != nil {
			return v, wrapBitbufErr(err)
		}
		v.Int = int64(b[0])
	case U16:
		b, err := r.ReadBytes(2)
		if err != nil {
			return v, wrapBitbufErr(err)
		}
		v.Int = int64(binary.LittleEndian.Uint16(b))
	case U32:
		b, err := r.ReadBytes(4)
		if err != nil {
			return v, wrapBitbufErr(err)
		}
		v.Int = int64(binary.LittleEndian.Uint32(b))
	case VarUint32:
		u, err := decodeVarUint32(r)
		if err != nil {
			return v, err
		}
		v.Int = int64(u)
	case VarInt32:
		u, err := decodeVarUint32(r)
		if err != nil {
			return v, err
		}
		v.Int = int64(zigzagDecode(u))
	case Bitfield:
		total := leaf.Args.TotalBits()
		raw, err := r.ReadBits(total)
		if err != nil {
			return v, wrapBitbufErr(err)
		}
		var signed int32
		if leaf.Args.Sign {
			signed = int32(raw<<(32-uint(total))) >> uint(32-total)
		} else {
			signed = int32(raw)
		}
		v.Float = float64(signed) / float64(int64(1)<<uint(leaf.Args.FBits))
		v.Int = int64(signed)
	case Name:
		b, err := r.ReadBytes(8)
		if err != nil {
			return v, wrapBitbufErr(err)
		}
		v.Bytes = b
	case FixedBytes:
		b, err := r.ReadBytes(leaf.Args.N)
		if err != nil {
			return v, wrapBitbufErr(err)
		}
		v.Bytes = b
	case DynBytes:
		n, err := decodeVarUint32(r)
		if err != nil {
			return v, err
		}
		b, err := r.ReadBytes(int(n))
		if err != nil {
			return v, wrapBitbufErr(err)
		}
		v.Bytes = b
	}
	return v, nil
}

// encodeLeaf dispatches a single primitive encode against w, per leaf.
func encodeLeaf(leaf Leaf, v Value, w *bitbuf.Writer) error {
	switch leaf.Kind {
	case U8:
		return w.WriteBytes([]byte{byte(v.Int)})
	case U16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v.Int))
		return w.WriteBytes(b)
	case U32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.Int))
		return w.WriteBytes(b)
	case VarUint32:
		return encodeVarUint32(w, uint32(v.Int))
	case VarInt32:
		return encodeVarUint32(w, zigzagEncode(int32(v.Int)))
	case Bitfield:
		total := leaf.Args.TotalBits()
		clamped := clampBitfield(v.Int, total, leaf.Args.Sign)
		w.WriteBits(total, uint32(clamped)&mask(total))
		return nil
	case Name:
		return w.WriteBytes(pad8(v.Bytes))
	case FixedBytes:
		return w.WriteBytes(padN(v.Bytes, leaf.Args.N))
	case DynBytes:
		if err := encodeVarUint32(w, uint32(len(v.Bytes))); err != nil {
			return err
		}
		return w.WriteBytes(v.Bytes)
	}
	return nil
}

func mask(bits int) uint32 {
	if bits >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << uint(bits)) - 1
}

// clampBitfield clamps value to the signed/unsigned range representable by
// bits instead of overflowing.
func clampBitfield(value int64, bits int, sign bool) int64 {
	if sign {
		lo := -(int64(1) << uint(bits-1))
		hi := (int64(1) << uint(bits-1)) - 1
		if value < lo {
			return lo
		}
		if value > hi {
			return hi
		}
		return value
	}
	hi := (int64(1) << uint(bits)) - 1
	if value < 0 {
		return 0
	}
	if value > hi {
		return hi
	}
	return value
}

func pad8(b []byte) []byte {
	return padN(b, 8)
}

func padN(b []byte, n int) []byte {
	if len(b) == n {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func decodeVarUint32(r *bitbuf.Reader) (uint32, error) {
	if !r.Aligned() {
		return 0, newError(NotAligned, "varuint32 requires byte alignment")
	}
	var result uint32
	for i := 0; i < maxVarintBytes; i++ {
		b, err := r.ReadBytes(1)
		if err != nil {
			return 0, wrapBitbufErr(err)
		}
		result |= uint32(b[0]&0x7f) << uint(7*i)
		if b[0]&0x80 == 0 {
			return result, nil
		}
	}
	return 0, newError(ShortBuffer, "varuint32 exceeds 5 bytes")
}

func encodeVarUint32(w *bitbuf.Writer, value uint32) error {
	if !w.Aligned() {
		return newError(NotAligned, "varuint32 requires byte alignment")
	}
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		if err := w.WriteBytes([]byte{b}); err != nil {
			return err
		}
		if value == 0 {
			return nil
		}
	}
}

// EncodeVarUint32 returns the base-128 LEB encoding of value as a standalone
// byte slice, for callers assembling wire data outside of a Writer (e.g. the
// reassembler's dyn_bytes length prefix when packing a completed trx).
func EncodeVarUint32(value uint32) []byte {
	var out []byte
	for {
		b := byte(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if value == 0 {
			return out
		}
	}
}

func zigzagEncode(x int32) uint32 {
	return (uint32(x) << 1) ^ uint32(x>>31)
}

func zigzagDecode(v uint32) int32 {
	return int32(v>>1) ^ -int32(v&1)
}

func wrapBitbufErr(err error) error {
	switch err {
	case bitbuf.ErrShortBuffer:
		return newError(ShortBuffer, "")
	case bitbuf.ErrNotAligned:
		return newError(NotAligned, "")
	default:
		return err
	}
}
