// Package codec implements the ELPP type schema engine: primitive codecs,
// the rose-tree schema describing how they compose, and the channel state
// machine (CHANNEL / DECODE / DISPATCH) that drives a byte stream through
// them.
package codec

import "elpp-gateway/internal/bitbuf"

// Processor receives the ordered vector of primitive outputs decoded for one
// channel firing, plus an opaque context value supplied by the caller. It
// must be non-blocking with respect to network I/O: it may enqueue work but
// must return promptly.
type Processor func(values []Value, ctx any) error

// Channel pairs a schema with the processor invoked once it decodes.
type Channel struct {
	Schema    Schema
	Processor Processor
}

// Engine is the channel-multiplexed decoder: a sparse map from one-byte
// channel selector to {schema, processor}. It holds no mutable state of its
// own beyond the map, so one Engine can be shared across goroutines as long
// as its Channels map is not mutated concurrently with Run.
type Engine struct {
	Channels map[byte]Channel
}

// NewEngine builds an Engine from a channel map.
func NewEngine(channels map[byte]Channel) *Engine {
	return &Engine{Channels: channels}
}

// Run drives the CHANNEL/DECODE/DISPATCH state machine over buf until the
// bit cursor reaches the end of the buffer in state CHANNEL. ctx is passed
// through unchanged to every processor invocation.
func (e *Engine) Run(buf []byte, ctx any) error {
	r := bitbuf.NewReader(buf)
	for {
		if r.AtEnd() {
			return nil
		}
		sel, err := r.PeekByte()
		if err != nil {
			return wrapBitbufErr(err)
		}
		ch, ok := e.Channels[sel]
		if !ok {
			return newError(ChannelNotFound, "")
		}
		if _, err := r.ReadBytes(1); err != nil {
			return wrapBitbufErr(err)
		}
		values, err := decodeSchema(ch.Schema, r)
		if err != nil {
			return err
		}
		if err := ch.Processor(values, ctx); err != nil {
			return err
		}
		r.AlignToByte()
	}
}

// decodeSchema performs the DECODE state: a depth-first traversal of s that
// appends each leaf's decoded Value to a single output vector in order.
func decodeSchema(s Schema, r *bitbuf.Reader) ([]Value, error) {
	var out []Value
	var walk func(Schema) error
	walk = func(node Schema) error {
		if node.Leaf != nil {
			v, err := decodeLeaf(*node.Leaf, r)
			if err != nil {
				return err
			}
			out = append(out, v)
			return nil
		}
		for _, c := range node.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(s); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode runs the DECODE traversal in reverse: it walks s depth-first,
// consuming one Value per leaf from values (in order) and writing it with
// the matching primitive encoder. It is the inverse of decodeSchema and is
// used by downlink encoding (TAPOS-response fragments) via EncodeChannel.
func Encode(s Schema, values []Value, w *bitbuf.Writer) error {
	i := 0
	var walk func(Schema) error
	walk = func(node Schema) error {
		if node.Leaf != nil {
			if i >= len(values) {
				return newError(ShortBuffer, "not enough values for schema")
			}
			v := values[i]
			i++
			return encodeLeaf(*node.Leaf, v, w)
		}
		for _, c := range node.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(s)
}

// EncodeChannel writes the one-byte channel selector followed by the
// schema-encoded values, byte-aligning afterwards, mirroring the DISPATCH
// state's realignment rule on the encode side.
func EncodeChannel(w *bitbuf.Writer, selector byte, s Schema, values []Value) error {
	if err := w.WriteBytes([]byte{selector}); err != nil {
		return err
	}
	if err := Encode(s, values, w); err != nil {
		return err
	}
	w.AlignToByte()
	return nil
}
