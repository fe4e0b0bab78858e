// Package auth implements portal accounts: registration, credential
// verification, session bound identities, self service profile edits and
// password recovery through single use reset tokens.
//
// Accounts and roles:
//   - Accounts are keyed by a UUID and a unique, normalized email address.
//     The first registered account receives Admin and Authenticated, every
//     later one only Authenticated.
//
// Sessions:
//   - The signed session cookie only carries a session id. The identity bound
//     to it is an AccountSnapshot kept in a SessionStore (memory or redis)
//     under the "current_account" key. Operations that change the caller's
//     own account re-bind the snapshot.
//
// Reset tokens:
//   - Tokens are 32 random bytes, URL safe encoded. Only their SHA-256 hash
//     is stored. Redemption marks the token redeemed and sets the new
//     password in the same transaction, so a token can succeed only once.
//
// Activity sinks:
//   - ActivitySink is a best effort audit emitter. Sink errors are logged and
//     never fail the operation that produced the event.
package auth
