// Package ledger is the identity registry: it records public keys exactly
// once, with an owner label and an authorization status, and answers whether
// a key is currently authorized.
//
// The registry holds no state of its own beyond its collaborators. All
// persistence, including the atomic check-then-insert that makes duplicate
// registration impossible, is delegated to a storage.Store.
package ledger
