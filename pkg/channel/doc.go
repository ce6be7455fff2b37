/*
Package channel mediates the worker/orchestrator message exchange on top of
pkg/storage: Report posts a worker message (marking the session
waiting_checkpoint and publishing session:checkpoint when the type requires
a response), Pending and Checkpoint read the outstanding queue, and Respond
answers a pending message and clears waiting_checkpoint once nothing else is
outstanding.

A background sweep, started by Start, expires response-required messages
nobody answered within Config.MessageTTL (default one hour) so a
disconnected orchestrator client can't wedge a session forever.
*/
package channel
