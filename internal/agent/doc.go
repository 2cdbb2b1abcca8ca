// ABOUTME: Package documentation for the agent package
// ABOUTME: Describes the host-side agent loop and its protocol client

// Package agent implements the host-side fleet agent.
//
// The agent runs a simple loop: report a heartbeat (application state,
// OS update status, version), claim at most one pending command, execute
// its shell commands sequentially while streaming output line by line,
// submit the result, sleep, repeat. Every request to the gateway is
// signed with the shared fleet key.
package agent
