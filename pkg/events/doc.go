/*
Package events implements the harness event bus: a single Broker that fans
out session lifecycle events (session:started, session:output,
session:waiting, session:checkpoint, session:completed, session:failed, and
recovery:complete) to every subscriber, typically the dashboard hub in
pkg/dashboard. The tool-call endpoint's wait_for_state_change operation does
not subscribe; it polls the store.

Publish never blocks on a slow subscriber: broadcast uses a non-blocking
send per subscriber channel, matching the harness's stated non-goal of
guaranteed delivery to disconnected clients. A subscriber that falls behind
simply misses events until it catches up or resubscribes with a fresh
snapshot from the caller (the broker itself holds no history).
*/
package events
