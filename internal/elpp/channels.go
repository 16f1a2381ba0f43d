// Package elpp defines the concrete channel schemas this gateway decodes:
// the four Antelope transaction fragment channels, the device-originated
// TAPOS-request channel, and the gateway-originated TAPOS-response schema
// used for the matching downlink.
package elpp

import "elpp-gateway/internal/codec"

// Channel selectors.
const (
	ChannelTapos             byte = 0
	ChannelAction            byte = 1
	ChannelSerializedAction  byte = 2
	ChannelSignature         byte = 3
	ChannelTaposRequest      byte = 4
	ChannelTaposResponse     byte = 4 // downlink reuses the same selector, opposite direction
)

// TaposSchema: header, 1-byte chain-id (low 3 bits), 10 opaque TAPOS bytes
// (uint32 expiration, uint16 ref_block_num, uint32 ref_block_prefix).
func TaposSchema() codec.Schema {
	return codec.Seq(
		codec.L("header", codec.U8, codec.Args{}),
		codec.L("chain_id", codec.U8, codec.Args{}),
		codec.L("expiration", codec.U32, codec.Args{}),
		codec.L("ref_block_num", codec.U16, codec.Args{}),
		codec.L("ref_block_prefix", codec.U32, codec.Args{}),
	)
}

// ActionSchema: header, then 16 bytes (dapp name, action name) and 16 bytes
// (permission name, actor name), each name a 64-bit opaque field.
func ActionSchema() codec.Schema {
	return codec.Seq(
		codec.L("header", codec.U8, codec.Args{}),
		codec.L("dapp_name", codec.Name, codec.Args{}),
		codec.L("action_name", codec.Name, codec.Args{}),
		codec.L("permission_name", codec.Name, codec.Args{}),
		codec.L("actor_name", codec.Name, codec.Args{}),
	)
}

// SerializedActionSchema: header, length-prefixed byte array.
func SerializedActionSchema() codec.Schema {
	return codec.Seq(
		codec.L("header", codec.U8, codec.Args{}),
		codec.L("data", codec.DynBytes, codec.Args{}),
	)
}

// SignatureSchema: header, 65 bytes (i:1, r:32, s:32).
func SignatureSchema() codec.Schema {
	return codec.Seq(
		codec.L("header", codec.U8, codec.Args{}),
		codec.L("sig", codec.FixedBytes, codec.Args{N: 65}),
	)
}

// TaposRequestSchema: header carrying chain_id in its low 3 bits, then a
// one-byte request id the gateway must echo back in its downlink response.
func TaposRequestSchema() codec.Schema {
	return codec.Seq(
		codec.L("header", codec.U8, codec.Args{}),
		codec.L("req_id", codec.U8, codec.Args{}),
	)
}

// TaposResponseSchema: the gateway-originated downlink fragment answering a
// TAPOS request — chain_id, req_id, gateway receive time (seconds and
// milliseconds), and the chain's current reference-block metadata.
func TaposResponseSchema() codec.Schema {
	return codec.Seq(
		codec.L("chain_id", codec.U8, codec.Args{}),
		codec.L("req_id", codec.U8, codec.Args{}),
		codec.L("gateway_sec", codec.U32, codec.Args{}),
		codec.L("gateway_ms", codec.U16, codec.Args{}),
		codec.L("ref_block_num", codec.U16, codec.Args{}),
		codec.L("ref_block_prefix", codec.U32, codec.Args{}),
	)
}
