package pager

// fsyncFile durably flushes f's contents to storage. It is implemented
// per-platform in diskmanager_unix.go (golang.org/x/sys/unix.Fsync) and
// diskmanager_other.go ((*os.File).Sync), mirroring how mmap setup is
// split across platforms elsewhere in the example pack.
