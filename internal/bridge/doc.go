// Package bridge translates capability server descriptors into the
// function-calling schema a language model consumes, and back.
//
// # Naming
//
// Capability servers expose tools under a qualified name of the form
// "server/tool". Function names use "." in place of "/":
//
//	fs/read_file  ->  fs.read_file
//
// Server names may not contain "." or "/", so QualifiedNameFromFunction only
// rewrites the first "." and tool names keep any dots of their own.
//
// # Fallback parsing
//
// ParseFunctionCallsFromText recovers calls that a model wrote as JSON inside
// fenced code blocks. Structured function calls always take precedence.
//
// Everything in this package is pure and safe for concurrent use.
package bridge
