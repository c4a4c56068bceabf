package main

import (
	"context"
	"io"
	"os"
	"time"

	mdxport "github.com/alnah/go-mdxport"
)

// Importer is the part of *mdxport.Converter the CLI drives.
type Importer interface {
	Convert(ctx context.Context, in mdxport.Input) (*mdxport.Result, error)
	CheckPandoc() error
	Close() error
}

// Compile-time interface implementation check.
var _ Importer = (*mdxport.Converter)(nil)

// Environment holds injectable dependencies for testability.
type Environment struct {
	Now         func() time.Time
	Stdout      io.Writer
	Stderr      io.Writer
	NewImporter func(opts ...mdxport.Option) (Importer, error)
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:         time.Now,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		NewImporter: newConverter,
	}
}

func newConverter(opts ...mdxport.Option) (Importer, error) {
	c, err := mdxport.NewConverter(opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}
