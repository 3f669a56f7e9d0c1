package main

const (
	helpTextUse = "peepfs <mountpoint> <backing-directory>"

	helpTextShort = "a read-only FUSE filesystem exposing archive contents as directories"

	helpTextLong = `peepfs is a read-only FUSE filesystem that mirrors a backing directory, but
additionally exposes every recognised archive file within it (ZIP, TAR and its
compressed variants, ISO9660, RAR, MS-CAB) as a sibling pseudo-directory whose
name carries a configurable magic suffix (default ".peep"). Traversing into
that pseudo-directory and descending further yields the archive's own members
as read-only files and directories; every other path passes straight through
to the backing directory unchanged.

When mounted, the following OS signals are observed at runtime:
- SIGTERM/SIGINT for gracefully unmounting the filesystem
- SIGUSR1 for printing a stack trace to standard error (stderr)

When enabled, the diagnostics dashboard exposes the following routes:
- "/" for the filesystem dashboard and its event ring buffer
- "/metrics.json" for the same data as JSON
- "/gc" for forcing a garbage collection run (within Go)
- "/reset" for resetting the filesystem metrics at runtime`
)
