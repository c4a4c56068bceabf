// Package yamlutil wraps YAML parsing to isolate the external dependency.
// This allows swapping the underlying YAML library without modifying callers.
// It also owns the front-matter fence format shared by readers and writers.
package yamlutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
)

// MaxInputSize limits YAML input to prevent memory exhaustion (default 1MB).
var MaxInputSize = 1 << 20

// FrontMatterDelimiter opens and closes a front-matter block.
const FrontMatterDelimiter = "---"

var (
	ErrNilData        = errors.New("yamlutil: nil or empty data")
	ErrNilDestination = errors.New("yamlutil: nil destination pointer")
	ErrInputTooLarge  = errors.New("yamlutil: input exceeds maximum size")
)

func validateInput(data []byte, v any) error {
	if len(data) == 0 {
		return ErrNilData
	}
	if len(data) > MaxInputSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	if v == nil {
		return ErrNilDestination
	}
	return nil
}

func Unmarshal(data []byte, v any) error {
	if err := validateInput(data, v); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// Marshal encodes v with block sequences indented under their key,
// the layout static-site front matter is usually written in.
func Marshal(v any) ([]byte, error) {
	result, err := yaml.MarshalWithOptions(v, yaml.IndentSequence(true))
	if err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	return result, nil
}

// UnmarshalStrict rejects unknown fields in the input.
func UnmarshalStrict(data []byte, v any) error {
	if err := validateInput(data, v); err != nil {
		return err
	}
	if err := yaml.UnmarshalWithOptions(data, v, yaml.Strict()); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// SplitFrontMatter separates a leading "---" fenced block from the body.
// ok is false when content does not start with a complete block; body is
// then the whole content.
func SplitFrontMatter(content string) (block, body string, ok bool) {
	rest, found := strings.CutPrefix(content, FrontMatterDelimiter+"\n")
	if !found {
		return "", content, false
	}
	if strings.HasPrefix(rest, FrontMatterDelimiter+"\n") {
		return "", rest[len(FrontMatterDelimiter)+1:], true
	}
	end := strings.Index(rest, "\n"+FrontMatterDelimiter+"\n")
	if end == -1 {
		if strings.HasSuffix(rest, "\n"+FrontMatterDelimiter) {
			return rest[:len(rest)-len(FrontMatterDelimiter)-1], "", true
		}
		return "", content, false
	}
	return rest[:end], rest[end+len(FrontMatterDelimiter)+2:], true
}

// EncodeFrontMatter marshals v and wraps it in "---" fences.
// The result always ends with the closing delimiter and a newline.
func EncodeFrontMatter(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(FrontMatterDelimiter + "\n")
	b.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString(FrontMatterDelimiter + "\n")
	return b.String(), nil
}

// Field is one key of an ordered mapping.
type Field struct {
	Key   string
	Value any
}

// Ordered returns a value that marshals as a mapping with keys in the
// order given.
func Ordered(fields []Field) any {
	out := make(yaml.MapSlice, 0, len(fields))
	for _, f := range fields {
		out = append(out, yaml.MapItem{Key: f.Key, Value: f.Value})
	}
	return out
}
