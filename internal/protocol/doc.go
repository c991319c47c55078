// Package protocol owns the client<->daemon wire contract.
//
// Ownership boundary:
// - frame/header primitives (frame)
// - tlv payload primitives (tlv)
// - per-message required fields (schema)
// - typed request/notification codecs (wire)
package protocol
