package platform

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// File extensions to skip: partial or temporary artifacts of the extractor
var (
	SkippedExtensions = []string{".part", ".ytdl", ".temp", ".tmp"}
)

// Maximum length of a cleaned title used in messages
const (
	MaxCleanTitleLength = 100
)

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// CleanFilename strips characters that are unsafe in file names and caps the length
func CleanFilename(name string) string {
	cleaned := strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(name, ""))
	if len(cleaned) > MaxCleanTitleLength {
		cleaned = cleaned[:MaxCleanTitleLength]
	}
	return cleaned
}

// FileFormat returns the lower-case extension of path without the leading dot
func FileFormat(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// StemPath returns path without its extension
func StemPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// Describe stats path and returns it as a result file descriptor
func Describe(path string) (model.ResultFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.ResultFile{}, errors.Wrapf(err, "stat %s", path)
	}
	if info.IsDir() {
		return model.ResultFile{}, errors.Errorf("%s is a directory", path)
	}
	return model.ResultFile{Path: path, Size: info.Size(), Format: FileFormat(path)}, nil
}

// isSkipped reports whether name is a partial or temporary artifact
func isSkipped(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range SkippedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindByContentID returns files in dir whose names contain contentID, newest first.
// Partial downloads are ignored.
func FindByContentID(dir, contentID string) ([]string, error) {
	if contentID == "" {
		return nil, errors.New("content id is empty")
	}

	pattern := filepath.Join(dir, "*"+escapeGlob(contentID)+"*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "glob %s", pattern)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	candidates := make([]candidate, 0, len(matches))
	for _, m := range matches {
		if isSkipped(filepath.Base(m)) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		candidates = append(candidates, candidate{path: m, modTime: info.ModTime()})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.path
	}
	return paths, nil
}

// escapeGlob quotes glob metacharacters so an id is matched literally
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SweepOlderThan removes regular files in dir whose modification time is older than
// now minus retention. It returns the removed paths; failures on single files are
// collected and do not stop the sweep.
func SweepOlderThan(dir string, retention time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read directory %s", dir)
	}

	cutoff := now.Add(-retention)
	var removed []string
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "remove %s", path)
			}
			continue
		}
		removed = append(removed, path)
	}
	return removed, firstErr
}

// RemoveIfExists deletes path, treating a missing file as success
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}

// FileExists reports whether path names an existing regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
