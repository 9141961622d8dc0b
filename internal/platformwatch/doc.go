package platformwatch

// fsnotify dispatches to inotify on Linux, kqueue on BSD/Darwin, and a
// directory handle with overlapped I/O (ReadDirectoryChangesW) on Windows.
// That dispatch is the "one implementation per platform" this package
// relies on instead of hand-rolling each syscall surface itself.
//
// A known gap inherited from that choice: on kqueue platforms, a directory
// watch's EVFILT_VNODE mask fires on structural changes (create, remove,
// rename of an entry) but not on an in-place attribute change such as
// chmod of an existing config file with unchanged content and mtime.
// RefreshEntry's content hash still protects against false changes; it
// does not manufacture a change notification quick-lint-js itself doesn't
// receive on that platform.
