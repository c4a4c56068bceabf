package mdxport

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/alnah/go-mdxport/internal/fileutil"
	"github.com/alnah/go-mdxport/internal/logger"
	"github.com/alnah/go-mdxport/internal/pipeline"
)

// copyAssets copies every recorded asset under outDir/assets/image and
// returns how many were copied. Missing sources are skipped with a warning;
// the Finalizer then drops the references that point at them.
func copyAssets(set *pipeline.AssetSet, outDir string, log logger.Logger) (int, error) {
	copied := 0
	for _, a := range set.Entries() {
		if fileutil.IsURL(a.Source) {
			continue
		}
		if !fileutil.FileExists(a.Source) {
			log.Warn("asset %s not found, skipped", a.Source)
			continue
		}
		checkImageType(a.Source, log)

		dst := filepath.Join(outDir, filepath.FromSlash(a.RelPath()))
		if err := fileutil.CopyFile(a.Source, dst); err != nil {
			return copied, fmt.Errorf("%w: %v", ErrWriteOutput, err)
		}
		copied++
	}
	return copied, nil
}

// assetOccupied reports whether name is taken under outDir's asset
// directory by a file other than a copy of source. Documents of a batch
// share that directory; a re-import of the same document keeps its names.
func assetOccupied(outDir string) func(name, source string) bool {
	return func(name, source string) bool {
		dst := filepath.Join(outDir, filepath.FromSlash(path.Join(pipeline.AssetDir, name)))
		if !fileutil.FileExists(dst) {
			return false
		}
		same, err := fileutil.SameContent(source, dst)
		return err != nil || !same
	}
}

// checkImageType warns when a file's content is not an image the site can
// display. PDF figures are allowed through: LaTeX sources use them often
// and they are converted downstream.
func checkImageType(path string, log logger.Logger) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		log.Debug("cannot sniff %s: %v", path, err)
		return
	}
	if strings.HasPrefix(mt.String(), "image/") || mt.Is("application/pdf") {
		return
	}
	log.Warn("asset %s looks like %s, not an image", filepath.Base(path), mt.String())
}
