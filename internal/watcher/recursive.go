package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"

	"nascraft/internal/fsutil"
)

var ErrNotWatched = errors.New("path is not watched")

// WatchRecursive registers root and every directory beneath it. Directories
// created later under root are registered when their creation event arrives.
// A failed registration rolls back everything added for this root.
func (watcher *Watcher) WatchRecursive(root string, callback func(Event)) error {
	if watcher == nil {
		return errors.New("watcher is nil")
	}
	if root == "" {
		return errors.New("path is required")
	}
	if callback == nil {
		return errors.New("callback is required")
	}
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return ErrClosed
	}
	if existing, ok := watcher.roots[root]; ok {
		existing.callback = callback
		watcher.mutex.Unlock()
		return nil
	}
	watcher.roots[root] = &rootWatch{callback: callback, dirs: make(map[string]struct{})}
	watcher.mutex.Unlock()

	for _, dir := range collectDirs(root) {
		if err := watcher.addDir(root, dir); err != nil {
			_ = watcher.dropRoot(root)
			return err
		}
	}
	return nil
}

// Unwatch removes root and every directory registered beneath it. Errors from
// the OS watcher are joined and returned after all removals were attempted.
func (watcher *Watcher) Unwatch(root string) error {
	if watcher == nil {
		return nil
	}
	root = filepath.Clean(root)

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	_, ok := watcher.roots[root]
	watcher.mutex.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", root, ErrNotWatched)
	}
	return watcher.dropRoot(root)
}

func collectDirs(root string) []string {
	dirs := []string{}
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path != root && entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}

func (watcher *Watcher) addDir(root, dir string) error {
	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return ErrClosed
	}
	entry, ok := watcher.roots[root]
	if !ok {
		watcher.mutex.Unlock()
		return nil
	}
	if _, ok := entry.dirs[dir]; ok {
		watcher.mutex.Unlock()
		return nil
	}
	count := watcher.dirs[dir]
	if count == 0 && len(watcher.dirs) >= watcher.maxWatches {
		watcher.mutex.Unlock()
		return ErrMaxWatchesExceeded
	}
	entry.dirs[dir] = struct{}{}
	watcher.dirs[dir] = count + 1
	activeCount := len(watcher.dirs)
	watcher.mutex.Unlock()

	if count > 0 || watcher.watcher == nil {
		return nil
	}
	if err := watcher.watcher.Add(dir); err != nil {
		_ = watcher.releaseDir(root, dir, false)
		watcher.logWarn("watch add failed", map[string]string{
			"path":  dir,
			"error": err.Error(),
		})
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	watcher.logDebug("watch added", dir, activeCount)
	return nil
}

// releaseDir drops one reference to dir held by root. The OS watch is removed
// when the last reference goes away and removeOS is set.
func (watcher *Watcher) releaseDir(root, dir string, removeOS bool) error {
	watcher.mutex.Lock()
	if entry, ok := watcher.roots[root]; ok {
		delete(entry.dirs, dir)
	}
	count := watcher.dirs[dir]
	if count == 0 {
		watcher.mutex.Unlock()
		return nil
	}
	if count > 1 {
		watcher.dirs[dir] = count - 1
		watcher.mutex.Unlock()
		return nil
	}
	delete(watcher.dirs, dir)
	activeCount := len(watcher.dirs)
	closed := watcher.closed
	watcher.mutex.Unlock()

	if !removeOS || closed || watcher.watcher == nil {
		return nil
	}
	if err := watcher.watcher.Remove(dir); err != nil {
		if !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			watcher.logWarn("watch remove failed", map[string]string{
				"path":  dir,
				"error": err.Error(),
			})
		}
		return err
	}
	watcher.logDebug("watch removed", dir, activeCount)
	return nil
}

func (watcher *Watcher) dropRoot(root string) error {
	watcher.mutex.Lock()
	entry, ok := watcher.roots[root]
	if !ok {
		watcher.mutex.Unlock()
		return nil
	}
	delete(watcher.roots, root)
	dirs := make([]string, 0, len(entry.dirs))
	for dir := range entry.dirs {
		dirs = append(dirs, dir)
	}
	watcher.mutex.Unlock()
	sort.Strings(dirs)

	var errs []error
	for _, dir := range dirs {
		err := watcher.releaseDir(root, dir, true)
		if err == nil {
			continue
		}
		// Deleted subdirectories lose their OS watch on their own.
		if dir != root && errors.Is(err, fsnotify.ErrNonExistentWatch) {
			continue
		}
		errs = append(errs, fmt.Errorf("unwatch %s: %w", dir, err))
	}
	return errors.Join(errs...)
}

// trackCreatedDir registers a directory that appeared under one or more roots
// and returns the entries already inside it, which were created before the
// watch landed and would otherwise go unreported.
func (watcher *Watcher) trackCreatedDir(dir string) []string {
	watcher.mutex.Lock()
	roots := make([]string, 0, 1)
	for root := range watcher.roots {
		if fsutil.IsWithin(root, dir) {
			roots = append(roots, root)
		}
	}
	watcher.mutex.Unlock()
	if len(roots) == 0 {
		return nil
	}

	for _, root := range roots {
		for _, nested := range collectDirs(dir) {
			if err := watcher.addDir(root, nested); err != nil {
				watcher.handleError(err)
				break
			}
		}
	}

	var existing []string
	_ = filepath.WalkDir(dir, func(path string, _ fs.DirEntry, err error) error {
		if err != nil || path == dir {
			return nil
		}
		existing = append(existing, path)
		return nil
	})
	return existing
}

// forgetDir drops bookkeeping for a watched directory that was removed or
// renamed away, along with everything registered beneath it.
func (watcher *Watcher) forgetDir(dir string) {
	type release struct {
		root string
		dir  string
	}
	watcher.mutex.Lock()
	if _, tracked := watcher.dirs[dir]; !tracked {
		watcher.mutex.Unlock()
		return
	}
	var releases []release
	for root, entry := range watcher.roots {
		if root == dir {
			continue
		}
		for registered := range entry.dirs {
			if fsutil.IsWithin(dir, registered) {
				releases = append(releases, release{root: root, dir: registered})
			}
		}
	}
	watcher.mutex.Unlock()

	for _, item := range releases {
		_ = watcher.releaseDir(item.root, item.dir, true)
	}
}
