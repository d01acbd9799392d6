// Package auth provides authentication for epic-crm.
//
// # Credentials
//
// A principal logs in with an email and a login secret. Both the login secret and
// the refresh secret are stored only as bcrypt digests (Hasher).
//
// Access tokens are HS256 JWTs issued by TokenCodec. The payload carries sub and
// role_id as decimal strings plus exp, iat and jti. The header carries kid, the id
// of the signing key. Verification accepts the current key and, during a rollover,
// the previous one:
//
//	codec, err := auth.NewTokenCodec(auth.KeySet{
//		Current:  auth.SigningKey{ID: "2026-05", Secret: current},
//		Previous: &auth.SigningKey{ID: "2026-01", Secret: previous},
//	}, 30*time.Minute)
//
// # Flows
//
// Authenticator runs Login, Refresh and Logout against a store.PrincipalStore and a
// local SessionStore. Refresh is single use: the stored refresh hash is swapped in
// one transaction conditional on the hash that was verified, then the local session
// is overwritten. A process that loses the race gets ErrInvalidCredential and must
// log in again.
//
// # Errors
//
//   - ErrUnknownPrincipal: no principal with that identifier
//   - ErrInvalidCredential: bad secret, bad signature, malformed token, rotated refresh secret
//   - ErrExpiredCredential: access token or refresh secret past expiry
//   - ErrNoSession: no local session
package auth
