// Package daemon keeps a downloads directory drained of matching files.
//
// # Architecture
//
//   - Watcher: fsnotify subscription on one directory, filtered by suffix
//   - Daemon: startup sweep, dispatch loop, optional rescan ticker, instance lock
//
// Matching, the seen-set, and copy-then-delete live in package relocate.
//
// # Watching
//
//	w, err := daemon.NewWatcher("/home/me/Downloads", ".data.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	for n := range w.Notifications() {
//	    fmt.Printf("%s %s\n", n.Change, n.Path)
//	}
//
// Create maps to Created, Write to Written, Remove and Rename to Removed.
// Chmod is dropped. A browser finishing a download by renaming a partial
// file onto the final name produces Created for the final name.
//
// # Running
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	d, err := daemon.New(downloadsDir, targetDir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Created and Written both reach Relocate; the seen-set turns the second one
// into a Duplicate. Notifications are handled one at a time on the goroutine
// running Start.
//
// Start returns an error only when it cannot begin: the lock is held by
// another process, the watched directory cannot be listed, or the
// subscription fails. Copy and delete failures are logged. Cancelling ctx
// closes the watcher, releases the lock and makes Start return nil; a settle
// delay in progress is abandoned, a copy in progress is not.
package daemon
