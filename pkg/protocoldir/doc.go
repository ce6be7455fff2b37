/*
Package protocoldir mirrors harness state onto disk under .orchestration/
(config.yaml, dependency-graph.json, active-files.json, and
sessions/<id>/{status,checkpoint,checkpoint_response,result}.json) so tools
outside the Tool-Call Endpoint — editors, git hooks, ad hoc scripts — can
read harness state directly.

Every write is a whole-file overwrite through a temp-file-plus-rename so a
reader never observes a partially written file. The mirror is write-only
from the harness's perspective: the store in pkg/storage is the only source
of truth, and on any disagreement between what's on disk and what the store
says, the store wins — a crash between Mirror writes and a store commit
only ever leaves disk stale, never wrong in a way that persists.
*/
package protocoldir
