/*
Package ptysup is the PTY Supervisor: it owns a fixed pool of slots, spawns
one child process per slot under a pseudo-terminal so the child believes it
has an interactive TTY, and wires its combined stdout/stderr into the
durable output log, the ring buffer, and the wait detector.

A Supervisor is constructed with New and started with Start, which launches
only the session-timeout watchdog — spawning happens on demand via Spawn.
RecoverOrphans must be called once at process startup, before any new
session is spawned, so that sessions left "running" by a crashed prior
process are marked orphaned and their children terminated rather than left
to mutate files unsupervised.

Injecting input (WriteInput) and resizing (Resize) write directly to the
pty master; the child sees them exactly as if a human had typed at an
attached terminal or resized the window. Output and exit handling run on two
per-session goroutines, pump and reap — see pump.go for why reap closes the
pty only after cmd.Wait() returns, not before.
*/
package ptysup
