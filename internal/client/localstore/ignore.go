package localstore

import (
	"bufio"
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/vaultsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

var DefaultExcludedFolders = []string{".obsidian", ".trash", ".git"}

const DefaultNoSyncFile = ".nosync"

var defaultIgnoreLines = []string{
	// OS
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	// editors
	"*.swp",
	"*~",
}

// IgnoreList decides which vault paths are never synced: anything under an
// excluded folder glob, and anything matched by the gitignore style rules of
// the vault's no-sync file.
type IgnoreList struct {
	fs       afero.Fs
	root     string
	fileName string
	folders  []string

	mu     sync.RWMutex
	ignore *gitignore.GitIgnore
}

func NewIgnoreList(fsys afero.Fs, root string, excludedFolders []string, noSyncFile string) *IgnoreList {
	folders := make([]string, 0, len(excludedFolders))
	for _, f := range excludedFolders {
		f = utils.NormPath(f)
		if f == "" {
			continue
		}
		if !doublestar.ValidatePattern(f) {
			slog.Warn("ignoring invalid excluded folder pattern", "pattern", f)
			continue
		}
		folders = append(folders, f)
	}

	return &IgnoreList{
		fs:       fsys,
		root:     root,
		fileName: noSyncFile,
		folders:  folders,
		ignore:   gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

// Load (re)reads the no-sync file. A missing file leaves only the defaults.
func (l *IgnoreList) Load() {
	lines := append([]string{}, defaultIgnoreLines...)

	if l.fileName != "" {
		p := filepath.Join(l.root, l.fileName)
		if data, err := afero.ReadFile(l.fs, p); err == nil {
			rules := 0
			scanner := bufio.NewScanner(bytes.NewReader(data))
			for scanner.Scan() {
				line := strings.TrimRight(scanner.Text(), "\r")
				if strings.TrimSpace(line) == "" {
					continue
				}
				lines = append(lines, line)
				if !strings.HasPrefix(line, "#") {
					rules++
				}
			}
			slog.Info("loaded nosync file", "path", p, "rules", rules)
		}
	}

	compiled := gitignore.CompileIgnoreLines(lines...)
	l.mu.Lock()
	l.ignore = compiled
	l.mu.Unlock()
}

// ShouldIgnore takes a vault relative path.
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	rel = utils.NormPath(rel)
	if rel == "" {
		return false
	}

	for _, folder := range l.folders {
		if ok, _ := doublestar.Match(folder, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(folder+"/**", rel); ok {
			return true
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ignore.MatchesPath(rel)
}
