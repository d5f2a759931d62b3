package banledger

import "errors"

// ErrNotFound mirrors the teacher session repository's not-found sentinel
// (infrastructure/routing/server_routing/session_management/errors.go):
// callers that ask about an IP the ledger has never seen get a plain
// sentinel rather than a typed wrapper, since there is nothing to unwrap.
var ErrNotFound = errors.New("banledger: ip not found")
