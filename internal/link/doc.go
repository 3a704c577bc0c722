// Package link keeps the device's network link up.
//
// Manager.EnsureLink blocks until the transport reports a usable link,
// retrying with a fixed pause between attempts. IsLinkUp is a cheap status
// query the scheduler calls on every tick.
//
// The default transport, NetTransport, treats the link as up when the
// configured interface is up and holds a non-loopback address, and
// optionally when a TCP probe to a known host:port succeeds.
package link
