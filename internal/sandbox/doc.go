/*
Package sandbox implements the Sandbox FS component: the single path by
which tool calls touch the filesystem. Every operation is confined to a
configured root, every mutation of an existing file snapshots a
pre-image FileVersion, every mutation records a FileChange, and every path's mutations are serialized through
store.Store.LockPath so a dense version index and a coherent diff chain
are guaranteed even under concurrent tool calls (from a sub-agent, say).

Write and ApplyPatch never touch the target path directly: they stage
the new content in a temp file in the same directory and rename it into
place, so a crash mid-write cannot leave a half-written file behind.
*/
package sandbox
