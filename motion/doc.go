// Package motion runs stage tilt rotations on a single background worker so that a slow physical
// rotation does not stall the request loop of the server.
//
// Rotations are submitted as Rotate messages to a bounded FIFO queue and executed strictly in
// submission order. A Stop message ends the worker after every rotation queued before it has run;
// it is only ever sent by Shutdown.
//
// The same motion lock guards the worker and the synchronous Execute path, so the max speed
// sequence (read drive rate, switch to the fastest rate, rotate, restore) never interleaves with
// another rotation.
//
// Failures of queued rotations have no caller to report to. They are logged, counted in Metrics
// and kept in LastError, and the stage itself reports them through its status.
package motion
