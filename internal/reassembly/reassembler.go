// Package reassembly implements the per-device transaction reassembler:
// four processors (TAPOS, ACTION, SERIALIZED-ACTION, SIGNATURE) that apply
// first-write-wins field updates to an in-flight record, plus a fifth
// processor for the device-originated TAPOS-request channel. A decoded
// fragment either completes a transaction, requests TAPOS, or leaves the
// record incomplete.
package reassembly

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/sirupsen/logrus"

	"elpp-gateway/internal/codec"
	"elpp-gateway/internal/elpp"
	"elpp-gateway/internal/sigrender"
)

// Reassembler drives the ELPP engine over one device's uplink payload and
// turns it into a Result.
type Reassembler struct {
	store  *Store
	engine *codec.Engine
	logger *logrus.Logger
}

// New builds a Reassembler backed by store, registering the four Antelope
// fragment channels plus the TAPOS-request channel.
func New(store *Store, logger *logrus.Logger) *Reassembler {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Reassembler{store: store, logger: logger}
	r.engine = codec.NewEngine(map[byte]codec.Channel{
		elpp.ChannelTapos:            {Schema: elpp.TaposSchema(), Processor: r.processTapos},
		elpp.ChannelAction:           {Schema: elpp.ActionSchema(), Processor: r.processAction},
		elpp.ChannelSerializedAction: {Schema: elpp.SerializedActionSchema(), Processor: r.processSerializedAction},
		elpp.ChannelSignature:        {Schema: elpp.SignatureSchema(), Processor: r.processSignature},
		elpp.ChannelTaposRequest:     {Schema: elpp.TaposRequestSchema(), Processor: r.processTaposRequest},
	})
	return r
}

// decodeCtx is the opaque context threaded through codec.Processor calls for
// one Decode invocation.
type decodeCtx struct {
	device *DeviceState
	result *Result
	lastID byte
}

// Decode consumes one uplink payload for the device identified by deviceKey.
// It serializes processing behind that device's lock.
func (r *Reassembler) Decode(payload []byte, deviceKey string) *Result {
	ds := r.store.Get(deviceKey)
	ds.Lock()
	defer ds.Unlock()

	ctx := &decodeCtx{device: ds}
	err := r.engine.Run(payload, ctx)
	if err != nil {
		return &Result{Kind: Error, Err: err}
	}
	if ctx.result != nil {
		return ctx.result
	}
	rec := ds.trxMap[ctx.lastID]
	status := "no fragment decoded"
	if rec != nil {
		status = rec.statusLine()
	}
	return &Result{Kind: Incomplete, Status: status}
}

func (r *Reassembler) processTapos(values []codec.Value, c any) error {
	ctx := c.(*decodeCtx)
	header := byte(values[0].Int)
	trxID := header & 0x7
	chainID := byte(values[1].Int) & 0x7
	ctx.lastID = trxID

	rec := ctx.device.getOrCreate(trxID)
	rec.touch()
	if !rec.chainSet {
		rec.chain = chainID
		rec.chainSet = true
	}
	if rec.tapos == nil {
		buf := make([]byte, 13)
		binary.LittleEndian.PutUint32(buf[0:4], uint32(values[2].Int))
		binary.LittleEndian.PutUint16(buf[4:6], uint16(values[3].Int))
		binary.LittleEndian.PutUint32(buf[6:10], uint32(values[4].Int))
		// buf[10:13] are max_net_usage_words, max_cpu_usage_ms, delay_sec,
		// each varuint(0) == a single zero byte.
		rec.tapos = buf
	}
	r.checkComplete(ctx, trxID, rec)
	return nil
}

func (r *Reassembler) processAction(values []codec.Value, c any) error {
	ctx := c.(*decodeCtx)
	header := byte(values[0].Int)
	trxID := header & 0x7
	ctx.lastID = trxID

	rec := ctx.device.getOrCreate(trxID)
	rec.touch()
	if rec.action == nil {
		buf := make([]byte, 34)
		buf[0] = 0x01 // outer action-array count
		copy(buf[1:9], values[1].Bytes)
		copy(buf[9:17], values[2].Bytes)
		buf[17] = 0x01 // permission-array count
		copy(buf[18:26], values[3].Bytes)
		copy(buf[26:34], values[4].Bytes)
		rec.action = buf
	}
	r.checkComplete(ctx, trxID, rec)
	return nil
}

func (r *Reassembler) processSerializedAction(values []codec.Value, c any) error {
	ctx := c.(*decodeCtx)
	header := byte(values[0].Int)
	trxID := header & 0x7
	ctx.lastID = trxID

	rec := ctx.device.getOrCreate(trxID)
	rec.touch()
	if rec.data == nil {
		rec.data = append([]byte(nil), values[1].Bytes...)
	}
	r.checkComplete(ctx, trxID, rec)
	return nil
}

func (r *Reassembler) processSignature(values []codec.Value, c any) error {
	ctx := c.(*decodeCtx)
	header := byte(values[0].Int)
	trxID := header & 0x7
	ctx.lastID = trxID

	rec := ctx.device.getOrCreate(trxID)
	rec.touch()
	if rec.signature == "" {
		sig, err := sigrender.Render(values[1].Bytes)
		if err != nil {
			return err
		}
		rec.signature = sig
	}
	r.checkComplete(ctx, trxID, rec)
	return nil
}

func (r *Reassembler) processTaposRequest(values []codec.Value, c any) error {
	ctx := c.(*decodeCtx)
	header := byte(values[0].Int)
	chainID := header & 0x7
	reqID := byte(values[1].Int)
	ctx.result = &Result{
		Kind:     TaposRequest,
		Chain:    chainID,
		TaposReq: &TaposReq{ChainID: chainID, ReqID: reqID},
	}
	return nil
}

// checkComplete assembles and emits the packed transaction the moment a
// record's fourth field lands, then deletes the record so the device table
// never holds a complete record.
func (r *Reassembler) checkComplete(ctx *decodeCtx, trxID byte, rec *record) {
	if !rec.complete() {
		return
	}
	packed := make([]byte, 0, len(rec.tapos)+1+len(rec.action)+5+len(rec.data))
	packed = append(packed, rec.tapos...)
	packed = append(packed, 0x00) // context-free actions count
	packed = append(packed, rec.action...)
	packed = append(packed, codec.EncodeVarUint32(uint32(len(rec.data)))...)
	packed = append(packed, rec.data...)

	tx := &Transaction{
		Signatures:            []string{rec.signature},
		Compression:           false,
		PackedContextFreeData: "",
		PackedTrx:             hex.EncodeToString(packed),
	}
	chain := rec.chain
	ctx.device.delete(trxID)
	ctx.result = &Result{Kind: Complete, Chain: chain, Trx: tx}
	r.logger.WithFields(logrus.Fields{
		"chain":  chain,
		"trx_id": trxID,
	}).Info("transaction reassembled")
}
