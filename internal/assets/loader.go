package assets

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects an asset directory and its file extension.
type Kind struct {
	Dir string
	Ext string
}

var (
	Filter  = Kind{Dir: "filters", Ext: ".lua"}
	Mapping = Kind{Dir: "mappings", Ext: ".yaml"}
	Style   = Kind{Dir: "styles", Ext: ".css"}
)

// String returns the directory name, used in error messages.
func (k Kind) String() string { return k.Dir }

func (k Kind) file(name string) string { return k.Dir + "/" + name + k.Ext }

// Names of the embedded defaults.
const (
	EquationFilterName = "equation-ids"
	DefaultMappingName = "default"
	ProofStyleName     = "proof"
)

var (
	ErrAssetNotFound    = errors.New("asset not found")
	ErrInvalidAssetName = errors.New("invalid asset name")
	ErrInvalidAssetDir  = errors.New("invalid asset directory")
	ErrAssetRead        = errors.New("failed to read asset")
)

// AssetLoader loads a named asset of a kind.
// Returns ErrAssetNotFound if it doesn't exist and ErrInvalidAssetName
// if the name could leave its kind's directory.
type AssetLoader interface {
	Load(kind Kind, name string) (string, error)
}

// checkName rejects names that are empty or carry a separator, a dot or NUL.
// A dot would let "default.yaml" become "default.yaml.yaml".
func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\.\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}
