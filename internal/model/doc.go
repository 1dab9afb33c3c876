// Package model abstracts the language model behind the query coordinator.
//
// Client is the whole contract: one Generate call per round, given the
// system instructions, the session history and the available functions.
// Gemini is the production implementation. Function names keep their dotted
// "server.tool" form on the wire.
package model
