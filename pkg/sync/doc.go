/*
The sync package implements linksync's reconciliation algorithm. It plans and
executes the operations that make the local root of a link consistent with its
external directories.

Planning happens in two passes:
 1. The deletion pass only looks at the paths that were synchronized by the
    previous execution. A path that's missing from a root it used to exist in
    was deleted by the user, so the deletion is propagated. Paths that were
    never synchronized are never deleted.
 2. The copy pass walks the roots and copies every file over the copies that
    are older than it. Directories that are missing from a root are created.

Conflicts are resolved purely by modification time: the most recently
modified copy of a file wins. Copies preserve the modification time of their
source, so a second plan made right after executing the first is empty.

Plans are executed sequentially without any rollback. If an operation fails,
the link is flagged as errored and the next plan picks up from whatever state
the filesystem was left in.
*/
package sync
