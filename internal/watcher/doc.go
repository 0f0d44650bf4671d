// Package watcher keeps a set of directories under live observation and
// reports files created inside them.
//
// Watcher wraps fsnotify with recursive registration and per-path debouncing.
// Reconciler owns the desired watch set: each update diffs the requested
// directories against the current set, unwatches what disappeared and
// watches what is new. Only creation events are published; modifications,
// removals and renames are discarded.
package watcher
