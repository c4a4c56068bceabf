package pipeline

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/alnah/go-mdxport/internal/fileutil"
)

var (
	imageTarget   = regexp.MustCompile(`(!\[(?:[^\[\]]|\[[^\[\]]*\])*\]\()(<[^>\n]+>|[^)\s]+)`)
	imgSrcAttr    = regexp.MustCompile(`(<img\b[^>]*?\bsrc=")([^"]+)(")`)
	unsafeNameRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// LocalizeImages registers the local images a Markdown body references as
// assets and points each reference at its copy under AssetDir. Paths are
// resolved against the context's SourceDir after URL-unescaping, the way
// Notion exports write them. Missing files and remote URLs are left alone.
func LocalizeImages(c *Context, text string) (string, Stats) {
	var st Stats
	localize := func(src string) string {
		target, ok := resolveLocalImage(c, src)
		if !ok {
			return src
		}
		st.Images++
		return c.Assets.AddNamed(target, safeAssetName(filepath.Base(target)))
	}

	out := mapProse(text, func(s string) string {
		s = imageTarget.ReplaceAllStringFunc(s, func(m string) string {
			sub := imageTarget.FindStringSubmatch(m)
			src := strings.TrimSuffix(strings.TrimPrefix(sub[2], "<"), ">")
			return sub[1] + localize(src)
		})
		return imgSrcAttr.ReplaceAllStringFunc(s, func(m string) string {
			sub := imgSrcAttr.FindStringSubmatch(m)
			return sub[1] + localize(sub[2]) + sub[3]
		})
	})
	return out, st
}

// LocalizeImagesPass wraps LocalizeImages for use in RunPasses.
func LocalizeImagesPass() Pass {
	return Pass{Name: "localizeImages", Apply: LocalizeImages}
}

func resolveLocalImage(c *Context, src string) (string, bool) {
	if src == "" || fileutil.IsURL(src) || strings.HasPrefix(src, "data:") || strings.HasPrefix(src, AssetDir+"/") {
		return "", false
	}
	if unescaped, err := url.PathUnescape(src); err == nil {
		src = unescaped
	}
	p := filepath.FromSlash(src)
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.SourceDir, p)
	}
	if !fileutil.FileExists(p) {
		c.Log.Debug("image not found, left as is: %s", src)
		return "", false
	}
	return p, true
}

// safeAssetName keeps names usable in Markdown links and import paths.
func safeAssetName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.Trim(unsafeNameRun.ReplaceAllString(strings.TrimSuffix(name, ext), "-"), "-")
	if stem == "" {
		stem = "image"
	}
	return stem + strings.ToLower(unsafeNameRun.ReplaceAllString(ext, ""))
}
