// Package transport is the contract between the session layer and a group
// communication daemon: status codes, the connect request, the Mailbox a
// session borrows for joins, sends and blocking receives, and the inbound
// Message shape.
//
// A Mailbox must tolerate Join, Leave and Multicast from one goroutine while
// another goroutine is blocked in Receive. Receive must return promptly once
// its context is done; that is the only cancellation path the session layer
// relies on.
package transport
