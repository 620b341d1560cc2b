// Package connection implements the runtime around the lifecycle machine.
//
// The Manager:
//   - Serializes commands, transport events and timer expiries through one inbox
//   - Performs effects: opens and closes transports, arms timers, sends heartbeats
//   - Drops stale timer expiries and events from replaced transports
//   - Notifies observers after every processed event
//
// The gorilla/websocket Dialer speaks the language service's request/response
// protocol over the tools.refinery.language.web.xtext.v1 subprotocol.
package connection
