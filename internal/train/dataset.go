package train

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"kartd/internal/common/fsutil"
)

// imageExts are the file extensions picked up from class directories.
var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// Sample is one labelled image on disk.
type Sample struct {
	Path  string
	Class int
}

// Dataset is a labelled image directory split into training and validation
// samples.
type Dataset struct {
	Root   string
	Labels []string
	Train  []Sample
	Val    []Sample
}

// ScanDir reads <root>/<label>/* for every label. Within a class, files are
// sorted by name and the first validationSplit fraction goes to validation.
// A missing class directory is an error; an empty one is allowed.
func ScanDir(root string, labels []string, validationSplit float64) (*Dataset, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels")
	}
	if validationSplit < 0 || validationSplit >= 1 {
		return nil, fmt.Errorf("validation split must be in [0,1), got %v", validationSplit)
	}
	base, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	ds := &Dataset{Root: abs, Labels: append([]string(nil), labels...)}
	for class, label := range labels {
		files, err := listImages(filepath.Join(abs, label))
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", label, err)
		}
		nVal := int(float64(len(files)) * validationSplit)
		for i, f := range files {
			s := Sample{Path: f, Class: class}
			if i < nVal {
				ds.Val = append(ds.Val, s)
			} else {
				ds.Train = append(ds.Train, s)
			}
		}
	}
	if len(ds.Train) == 0 {
		return nil, fmt.Errorf("no training images under %s", abs)
	}
	return ds, nil
}

// ScanAll reads every image of every class without splitting, in class then
// name order.
func ScanAll(root string, labels []string) ([]Sample, error) {
	ds, err := ScanDir(root, labels, 0)
	if err != nil {
		return nil, err
	}
	return ds.Train, nil
}

// ClassCounts returns the number of samples per class index.
func ClassCounts(samples []Sample, classes int) []int {
	out := make([]int, classes)
	for _, s := range samples {
		if s.Class >= 0 && s.Class < classes {
			out[s.Class]++
		}
	}
	return out
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// LoadImage decodes an image file, applying its EXIF orientation.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return img, nil
}
