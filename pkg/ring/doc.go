/*
Package ring holds the bounded output buffer and the wait-state heuristics
the supervisor runs over it.

Each session gets one Buffer capped at DefaultMaxBytes of trailing combined
stdout/stderr. After every write, the session's Detector runs
Classify(buffer.Bytes()) to decide whether the child looks blocked on
operator input (a numbered menu, a permission/yes-no prompt, a bare
"continue?", or a generic trailing prompt) versus still making progress.
Classification is line-oriented pattern matching over the tail, so a session
that resolves its own prompt reclassifies as not-waiting on the next poll
with no separate clear signal needed. The one piece of history a Detector
keeps is its last waiting classification, reused when a work-complete marker
appears together with a trailing prompt.
*/
package ring
