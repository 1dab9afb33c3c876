// Package ipc implements the hearthd socket protocol.
//
// # Framing
//
// Every message in both directions is a 4-byte little-endian unsigned length
// followed by that many bytes of JSON. A connection carries exactly one
// request and one response.
//
//	request:  {"query": "...", "session_id": "..." | null}
//	response: {"response": "...", "session_id": "..." | null, "error": "..." | null}
//
// # Reserved Queries
//
//   - __PING__ answers PONG and echoes the session id without touching storage
//   - __LIST_SESSIONS__ answers a JSON array of session ids with a null session id
//
// Any other query runs through the Processor against the named session, which
// is created on first use. The session is saved after every attempt, and a
// processing failure is reported in the error field together with the id.
package ipc
