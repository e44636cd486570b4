package pathname

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// Relocate performs spec.md §4.4's atomic rename/relocate procedure: it
// moves a Media's video file (plus any sidecars sharing its stem, and any
// "fuzzy" sibling named after the remote key when the template uses
// `{key}`) from its current path to newPath, then prunes the directories
// it vacates.
//
//  1. create the new parent directory
//  2. rename the video file to newPath
//  3. collect other/fuzzy sidecar paths
//  4. move each sidecar, substituting the new stem for the old
//  5. (caller updates the Store's media_file and clears skip)
//  6. (caller rewrites the NFO at the new location, if configured)
//  7. walk upward from the old parent removing now-empty directories
func Relocate(sourceDir, oldPath, newPath string, usesKeyPlaceholder bool, remoteKey string) error {
	newParent := filepath.Dir(newPath)
	if err := os.MkdirAll(newParent, 0o755); err != nil {
		return fmt.Errorf("pathname: create parent dir %s: %w", newParent, err)
	}

	oldParent := filepath.Dir(oldPath)
	oldStem := stemOf(oldPath)
	newStem := stemOf(newPath)

	if err := moveFile(oldPath, newPath); err != nil {
		return fmt.Errorf("pathname: rename video %s -> %s: %w", oldPath, newPath, err)
	}

	others, err := otherPaths(oldParent, oldStem)
	if err != nil {
		return fmt.Errorf("pathname: collect sidecars of %s: %w", oldPath, err)
	}
	if usesKeyPlaceholder && remoteKey != "" {
		fuzzy, err := fuzzyPaths(sourceDir, remoteKey)
		if err != nil {
			return fmt.Errorf("pathname: collect fuzzy sidecars for key %s: %w", remoteKey, err)
		}
		others = append(others, fuzzy...)
	}

	seen := make(map[string]bool, len(others))
	for _, other := range others {
		if other == oldPath || seen[other] {
			continue
		}
		seen[other] = true
		destName := newStem + strings.TrimPrefix(filepath.Base(other), oldStem)
		dest := filepath.Join(newParent, destName)
		if _, statErr := os.Stat(dest); statErr == nil {
			// An existing destination wins for fuzzy (non-exact-stem)
			// matches; exact-stem sidecars always replace.
			if !strings.HasPrefix(filepath.Base(other), oldStem) {
				continue
			}
		}
		if err := moveFile(other, dest); err != nil {
			return fmt.Errorf("pathname: move sidecar %s -> %s: %w", other, dest, err)
		}
	}

	pruneEmptyDirs(sourceDir, oldParent)
	return nil
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// moveFile renames src to dest, falling back to a copy-then-remove when
// the two paths sit on different filesystems (os.Rename's EXDEV case).
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	pending, err := renameio.NewPendingFile(dest)
	if err != nil {
		return err
	}
	defer pending.Cleanup()
	if _, err := pending.Write(data); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return os.Remove(src)
}

// otherPaths returns files in dir whose name starts with stem, excluding
// nothing (the caller skips the video file itself by path equality).
func otherPaths(dir, stem string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), stem) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	return matches, nil
}

// fuzzyPaths walks sourceDir for files whose name contains remoteKey,
// used only when the active template uses `{key}` (spec.md §4.4).
func fuzzyPaths(sourceDir, remoteKey string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.Contains(d.Name(), remoteKey) {
			matches = append(matches, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return matches, err
}

// PruneEmptyDirs removes empty directories walking upward from start until
// root (exclusive) or a non-empty directory is reached. Exported for reuse
// by the Retention cleanup path (spec.md §4.8), which passes the download
// root as root after deleting a Media's files, so a Source's own directory
// is removed too once it is left empty.
func PruneEmptyDirs(root, start string) {
	pruneEmptyDirs(root, start)
}

// pruneEmptyDirs walks upward from start, removing empty directories until
// it reaches root (exclusive) or hits a non-empty one.
func pruneEmptyDirs(root, start string) {
	cleanRoot := filepath.Clean(root)
	dir := filepath.Clean(start)
	for dir != cleanRoot && strings.HasPrefix(dir, cleanRoot) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
