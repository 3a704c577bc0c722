// Package agent runs the device's single control loop.
//
// The Scheduler owns the connectivity state machine and the publish
// schedule. Each Tick advances the machine by one step:
//
//	Disconnected  ensure the link, then LinkUp
//	LinkUp        drop back if the link is gone, else ensure the session, then SessionUp
//	SessionUp     drop back if the link is gone; restore a lost session;
//	              otherwise poll inbound messages and publish when due
//
// Blocking reconnects halt everything else until they return. Inbound
// commands are handled inside Poll on the scheduler goroutine, so they
// never run concurrently with telemetry.
package agent
