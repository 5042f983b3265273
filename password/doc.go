// Package password hashes and verifies user passwords and checks candidate
// passwords against a strength policy.
//
// New hashes are argon2id in PHC string form. Digests imported from bcrypt
// stores still verify and always report NeedsUpgrade, so the caller can rehash
// on the next successful login.
//
// This package never stores passwords and never imports other tenantauth packages.
package password
