// Package session is the Redis-backed session registry.
//
// Each session is a hash keyed by its id, plus a per-user index set used for
// listing and mass revocation. Rotation, touch and revocation run as Lua
// scripts so every check-and-mutate step is atomic.
//
// # Rotation
//
// Rotate creates a new session and leaves the old record as a "rotated"
// tombstone until its original expiry. Presenting the old refresh secret again
// revokes every session of the user and reports ErrReused.
//
// This package does not interpret JWTs or make authorization decisions.
package session
