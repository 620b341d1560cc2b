// Package lifecycle implements the connection lifecycle state machine.
//
// The machine has orthogonal regions that run side by side:
//   - connection: disconnected, socketCreated (open + idle sub-regions),
//     errorWait, timedOut, offline, suspended
//   - tab: visibleOrUnknown / hidden
//   - network: onlineOrUnknown / offline
//   - keep-alive: off / on
//
// plus the error log and retry counter carried in Context.
//
// Machine.Transition is pure: it takes a State and an Event and returns a Step
// holding the next State, the Effects to execute in order, and any events
// raised for synchronous re-dispatch. Timers are armed by the enter helpers of
// the state that owns them and disarmed by the matching exit helpers, so a
// driver that honours ArmTimer/DisarmTimer never sees a timer outlive its state.
package lifecycle
