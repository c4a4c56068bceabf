package pipeline

import (
	"path"
	"strconv"
	"strings"
	"unicode"
)

// Component names used in the body.
const (
	ComponentImage      = "Image"
	ComponentMultiImage = "MultiImage"
)

// reservedNames cannot be used as import variables.
var reservedNames = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "enum": true, "export": true, "extends": true,
	"false": true, "finally": true, "for": true, "function": true, "if": true,
	"import": true, "in": true, "instanceof": true, "new": true, "null": true,
	"return": true, "super": true, "switch": true, "this": true, "throw": true,
	"true": true, "try": true, "typeof": true, "var": true, "void": true,
	"while": true, "with": true, "yield": true, "let": true, "static": true,
	"implements": true, "interface": true, "package": true, "private": true,
	"protected": true, "public": true, "await": true, "arguments": true,
	"eval": true, "undefined": true, "NaN": true, "Infinity": true,
	ComponentImage: true, ComponentMultiImage: true,
}

// ImportTable assigns one JavaScript variable per image path and records
// which components the body uses.
type ImportTable struct {
	byPath     map[string]string
	names      map[string]bool
	paths      []string
	components map[string]bool
}

// NewImportTable creates an empty table.
func NewImportTable() *ImportTable {
	return &ImportTable{
		byPath:     make(map[string]string),
		names:      make(map[string]bool),
		components: make(map[string]bool),
	}
}

// Image returns the variable bound to path, creating it on first use.
func (t *ImportTable) Image(p string) string {
	if v, ok := t.byPath[p]; ok {
		return v
	}
	base := VariableName(p)
	v := base
	for i := 2; t.names[v]; i++ {
		v = base + "_" + strconv.Itoa(i)
	}
	t.names[v] = true
	t.byPath[p] = v
	t.paths = append(t.paths, p)
	return v
}

// UseComponent records that the body renders a component.
func (t *ImportTable) UseComponent(name string) {
	t.components[name] = true
}

// ImageImport is one image import line.
type ImageImport struct {
	Var  string
	Path string
}

// Images returns the image imports in first-use order.
func (t *ImportTable) Images() []ImageImport {
	out := make([]ImageImport, 0, len(t.paths))
	for _, p := range t.paths {
		out = append(out, ImageImport{Var: t.byPath[p], Path: p})
	}
	return out
}

// Components returns the used component names, Image before MultiImage.
func (t *ImportTable) Components() []string {
	var out []string
	for _, name := range []string{ComponentImage, ComponentMultiImage} {
		if t.components[name] {
			out = append(out, name)
		}
	}
	return out
}

// VariableName derives a JavaScript identifier from a file path's stem.
func VariableName(p string) string {
	stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
	var b strings.Builder
	for _, r := range stem {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	name := b.String()
	if strings.Trim(name, "_") == "" {
		return "img"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "img_" + name
	}
	if reservedNames[name] {
		name += "_img"
	}
	return name
}
