/*
PURPOSE:
  Finds, validates and base64-encodes image inputs for vision jobs.

REQUIREMENTS:
  User-specified:
  - Accept explicit files and a directory of images.

  Implementation-discovered:
  - Files with an image extension can still be corrupt; decode the header first.
  - Encoding large images serially dominates startup, so it uses a worker pool.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine.BuildPlan, internal/cli (default discovery)

ERROR HANDLING:
  - Unreadable or undecodable images are skipped with a warning.

IMPLEMENTATION RULES:
  - EncodeImages keeps input order.

USAGE:
  paths, err := sweep.CollectImages(files, dir)
  images := sweep.EncodeImages(paths, 4)

RELATED FILES:
  - internal/engine/plan.go
*/

package sweep

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alitto/pond"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/daryltucker/ollama-sweep/internal/output"
)

// ErrUnsupportedFormat is returned for files that are not a decodable image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

// IsImage reports whether path has a supported image extension.
func IsImage(path string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path)))
}

// EncodeImage validates the file as an image and returns it base64 encoded.
func EncodeImage(path string) (string, error) {
	if !IsImage(path) {
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("image %s: %w", path, err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("%s: %w (%v)", path, ErrUnsupportedFormat, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// CollectImages merges explicit image paths with the supported files of
// dir (sorted by name). Duplicates are dropped, order is kept.
func CollectImages(paths []string, dir string) ([]string, error) {
	out := slices.Clone(paths)
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read image directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !IsImage(e.Name()) {
				continue
			}
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	seen := make(map[string]bool, len(out))
	return slices.DeleteFunc(out, func(p string) bool {
		if seen[p] {
			return true
		}
		seen[p] = true
		return false
	}), nil
}

var defaultImageCandidates = []string{
	filepath.Join("assets", "test_image.jpg"),
	filepath.Join("assets", "example.png"),
	filepath.Join("assets", "sample.jpg"),
	filepath.Join("data", "test_image.jpg"),
	filepath.Join("data", "example.png"),
	filepath.Join("data", "sample.jpg"),
}

// DiscoverDefaultImages returns the first well-known sample image found
// under root. It is a convenience for interactive runs in mode=both.
func DiscoverDefaultImages(root string) []string {
	for _, c := range defaultImageCandidates {
		p := filepath.Join(root, c)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return []string{p}
		}
	}
	return nil
}

// EncodedImage is an image ready for the generate payload.
type EncodedImage struct {
	Path string
	Data string
}

// EncodeImages encodes paths concurrently. Images that fail to encode are
// skipped with a warning; the result keeps the input order.
func EncodeImages(paths []string, workers int) []EncodedImage {
	if len(paths) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = 4
	}
	workers = min(workers, len(paths))

	results := make([]*EncodedImage, len(paths))
	pool := pond.New(workers, 0, pond.MinWorkers(workers))
	for i, p := range paths {
		i, p := i, p
		pool.Submit(func() {
			data, err := EncodeImage(p)
			if err != nil {
				output.Logger.Warn("Skipping image", "path", p, "error", err)
				return
			}
			results[i] = &EncodedImage{Path: p, Data: data}
		})
	}
	pool.StopAndWait()

	var out []EncodedImage
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
