// Package keys manages the secp256k1 keys covenant participants sign with.
//
// Keys live on the local filesystem as hex-encoded 32-byte secrets:
//
//	<dir>/<name>/root.key
//	<dir>/<name>/roles/<role>.key
//
// Role keys are derived from the root key with HKDF-SHA256, so a participant
// can hold one backed-up secret and a distinct key per covenant role (holder,
// slasher, requester, worker, asserter).
package keys
