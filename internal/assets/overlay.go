package assets

import (
	"errors"
	"fmt"
	"os"
	"slices"
)

// Overlay serves assets from a user directory laid over the embedded
// defaults. The directory only needs the files it replaces: a mapping table
// or filter it lacks comes from the binary.
//
// The directory is opened as an os.Root, so neither a name nor a symlink
// inside it can reach files outside.
type Overlay struct {
	root   *os.Root
	layers []*FSLoader
}

// NewOverlay opens dir over the embedded defaults. An empty dir yields the
// defaults alone.
func NewOverlay(dir string) (*Overlay, error) {
	o := &Overlay{}
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAssetDir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: not a directory: %s", ErrInvalidAssetDir, dir)
		}
		root, err := os.OpenRoot(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAssetDir, err)
		}
		o.root = root
		o.layers = append(o.layers, NewFSLoader(root.FS()))
	}
	o.layers = append(o.layers, NewEmbeddedLoader())
	return o, nil
}

// Load returns the first layer's copy of the asset. Only a missing file
// falls through; a bad name or an unreadable file stops the lookup.
func (o *Overlay) Load(kind Kind, name string) (string, error) {
	var err error
	for _, layer := range o.layers {
		var content string
		content, err = layer.Load(kind, name)
		if !errors.Is(err, ErrAssetNotFound) {
			return content, err
		}
	}
	return "", err
}

// Names lists the assets of a kind across all layers, sorted and unique.
func (o *Overlay) Names(kind Kind) []string {
	var names []string
	for _, layer := range o.layers {
		names = append(names, layer.List(kind)...)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Custom reports whether a user directory is layered in.
func (o *Overlay) Custom() bool { return o.root != nil }

// Close releases the user directory.
func (o *Overlay) Close() error {
	if o.root == nil {
		return nil
	}
	return o.root.Close()
}

var _ AssetLoader = (*Overlay)(nil)
