// Package coordinator runs the query loop behind every IPC request.
//
// For each query the coordinator appends the user's text to the session,
// then alternates between the model and the capability servers: the model
// either answers in text, which ends the query, or asks for function calls.
// Each call is resolved back to (server, tool), checked by the
// authorization gate, and executed on the capability host. Results, denials
// included, are appended as a tool turn and the model is asked again, up to
// Options.MaxToolRounds times.
package coordinator
