package assets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed filters/* mappings/* styles/*
var embedded embed.FS

// FSLoader loads assets from a tree laid out as kind directories.
type FSLoader struct {
	fsys fs.FS
}

// NewEmbeddedLoader returns a loader over the assets shipped in the binary.
func NewEmbeddedLoader() *FSLoader {
	return &FSLoader{fsys: embedded}
}

// NewFSLoader returns a loader over fsys.
func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

func (l *FSLoader) Load(kind Kind, name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	content, err := fs.ReadFile(l.fsys, kind.file(name))
	switch {
	case err == nil:
		return string(content), nil
	case errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: %s %q", ErrAssetNotFound, kind, name)
	default:
		return "", fmt.Errorf("%w: %s %q: %v", ErrAssetRead, kind, name, err)
	}
}

// List returns the asset names of a kind, sorted.
func (l *FSLoader) List(kind Kind) []string {
	entries, err := fs.ReadDir(l.fsys, kind.Dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), kind.Ext)
		if ok && !entry.IsDir() && checkName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

var _ AssetLoader = (*FSLoader)(nil)
