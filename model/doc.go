// Package model defines the identity record shared by the registry, its
// storage backends and the transport layer.
//
// The JSON form of a record body is
//
//	{"owner": "...", "status": "active"|"revoked", "registered_at": "<RFC 3339>", "scheme": "ed25519"}
//
// keyed by the public key hex in the enclosing document. Unknown fields
// round-trip through IdentityRecord.Extra. Bodies written by older tooling
// carry a naive local "timestamp" instead of "registered_at"; it is accepted
// on read.
package model
