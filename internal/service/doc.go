// Package service implements supervision of evaluation tool subprocesses.
//
// Overview
// A Registry owns the jobs launched through it. Each Job wraps one Process,
// keyed by the OS process identifier. Jobs stay registered from the moment
// the process is spawned until they are explicitly deleted.
//
// Process is a thin wrapper around os/exec:
//   - splits the command line with shell rules and starts the process
//   - copies stdout and stderr into LineBuffers (never blocks the child)
//   - reaps the process in a goroutine and records its exit state
//   - exposes non-blocking Poll, Drain and Terminate
//
// Data flow:
//
//	Registry               Job{pid}                 Process
//	    |                     |                        |
//	Launch ------------------------------------------->| os/exec.Start + Wait() in goroutine
//	    |-- register -------->|                        | stdout/stderr -> LineBuffer
//	Get/List -- refresh ----->| Poll() --------------->|
//	    |                     | Drain() -------------->|
//	    |<-- JobDetail -------| progress rescan        |
//	Stop/Delete ------------->| Terminate() ---------->| SIGTERM
//
// Invariants:
//   - Accumulated output only grows until the job is deleted.
//   - Status is recomputed from a fresh Poll on every refresh.
//   - Stopped is sticky: a job terminated on request reports Stopped
//     whatever its exit code is.
//   - Refreshes of a single job are serialised by the job mutex.
//
// Processes are not bound to any request context and are never timed out;
// a restart of the server orphans the ones still running unless the
// registry is closed with terminate set.
package service
