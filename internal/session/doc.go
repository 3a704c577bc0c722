// Package session keeps a broker session open on top of the network link.
//
// EnsureSession connects under the client ID "<transport_prefix>-<uid>",
// subscribes to the device commands topic at QoS 1 and announces the device
// online. Subscriptions are set up again after every reconnect; nothing is
// assumed to survive a dropped session.
//
// Poll must be called on every scheduler tick while the session is active.
// It hands queued inbound messages to the inbound handler on the calling
// goroutine.
package session
