// Package daemon assembles hearthd from its configuration.
//
// New opens storage, builds the authorization gate, loads the capability
// server list, seeds auto_execute tools into the allow-list and wires the
// query coordinator behind the socket server. Run connects to the capability
// servers and serves until its context is cancelled.
package daemon
