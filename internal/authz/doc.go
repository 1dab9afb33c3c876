// Package authz decides whether a model-issued tool call may execute.
//
// # Policy
//
// Each (server, tool) pair is either unknown or always allowed. Unknown
// pairs are put to a Decider, which answers with one of:
//
//   - AllowOnce: run this call, ask again next time
//   - DenyOnce: refuse this call, ask again next time
//   - AlwaysAllow: run this call and never ask again for the pair
//
// Deny is never remembered.
//
// # Deciders
//
// TerminalDecider prompts an operator and treats any unrecognised answer,
// including an empty line, as a deny. StaticDecider answers every request the
// same way for unattended daemons.
//
// # Storage
//
// Always-allow decisions go to an AllowList: MemoryAllowList for the
// lifetime of the process, or store.SQLiteStore to survive restarts.
package authz
