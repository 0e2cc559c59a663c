// Package evaluate measures per-item accuracy of a classifier over a
// directory of labeled captures laid out as <dir>/<item>/<image>.
package evaluate

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/teslashibe/go-itemsense/pkg/vision"
)

// DefaultExtensions are the image types picked up from capture folders.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// Loader reads one image as a frame.
type Loader func(path string) (vision.Frame, error)

// Options configures an evaluation.
type Options struct {
	// CapturesDir holds one sub-directory per item.
	CapturesDir string

	// Extensions filters image files. Empty means DefaultExtensions.
	Extensions []string

	// Progress receives a progress bar. Nil disables it.
	Progress io.Writer

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// ItemResult is the accuracy for one item folder.
type ItemResult struct {
	Item     string
	Total    int
	Correct  int
	Accuracy float64
}

// Report is the outcome of an evaluation.
type Report struct {
	Items []ItemResult
}

// Total returns the number of images evaluated.
func (r Report) Total() int {
	n := 0
	for _, it := range r.Items {
		n += it.Total
	}
	return n
}

// Overall returns the accuracy across all images, 0 when there are none.
func (r Report) Overall() float64 {
	total, correct := 0, 0
	for _, it := range r.Items {
		total += it.Total
		correct += it.Correct
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// WriteCSV writes item,total,correct,accuracy rows.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"item", "total", "correct", "accuracy"}); err != nil {
		return err
	}
	for _, it := range r.Items {
		row := []string{
			it.Item,
			strconv.Itoa(it.Total),
			strconv.Itoa(it.Correct),
			strconv.FormatFloat(it.Accuracy, 'f', 4, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// chartWidth is the bar length of an item at 100%.
const chartWidth = 40

// WriteChart draws one horizontal accuracy bar per item.
func (r Report) WriteChart(w io.Writer) error {
	pad := 0
	for _, it := range r.Items {
		pad = max(pad, len(it.Item))
	}
	for _, it := range r.Items {
		n := int(math.Round(it.Accuracy * chartWidth))
		bar := strings.Repeat("█", n) + strings.Repeat("·", chartWidth-n)
		if _, err := fmt.Fprintf(w, "%-*s %s %5.1f%%\n", pad, it.Item, bar, it.Accuracy*100); err != nil {
			return err
		}
	}
	return nil
}

// Run classifies every capture and tallies top-label hits per item. An
// inference failure aborts the run.
func Run(ctx context.Context, opts Options, clf vision.Classifier, labels vision.Labels, load Loader) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	items, err := scan(opts.CapturesDir, exts)
	if err != nil {
		return Report{}, err
	}

	total := 0
	for _, it := range items {
		total += len(it.images)
		if !labels.Contains(it.name) {
			logger.Warn("capture folder is not a model label, every image will count as a miss", "item", it.name)
		}
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Evaluating"),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionShowCount(),
		)
	}

	var report Report
	for _, it := range items {
		res := ItemResult{Item: it.name, Total: len(it.images)}
		for _, path := range it.images {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			predicted, err := classifyFile(clf, labels, load, path)
			if err != nil {
				return report, err
			}
			if predicted == it.name {
				res.Correct++
			}
			if bar != nil {
				bar.Add(1)
			}
		}
		if res.Total > 0 {
			res.Accuracy = float64(res.Correct) / float64(res.Total)
		}
		report.Items = append(report.Items, res)
		logger.Debug("item evaluated", "item", res.Item, "total", res.Total, "correct", res.Correct)
	}

	if bar != nil {
		bar.Finish()
	}
	return report, nil
}

func classifyFile(clf vision.Classifier, labels vision.Labels, load Loader, path string) (string, error) {
	frame, err := load(path)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", path, err)
	}
	defer frame.Close()

	dist, err := clf.Classify(frame)
	if err != nil {
		return "", fmt.Errorf("classify %s: %w", path, err)
	}
	if err := vision.CheckShape(dist, labels); err != nil {
		return "", fmt.Errorf("classify %s: %w", path, err)
	}
	idx, _ := vision.TopLabel(dist)
	return labels.Name(idx), nil
}

type item struct {
	name   string
	images []string
}

// scan lists item folders and their images, both sorted by name.
func scan(dir string, exts []string) ([]item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read captures: %w", err)
	}

	var items []item
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read captures: %w", err)
		}

		it := item{name: e.Name()}
		for _, f := range files {
			if f.IsDir() || !hasExt(f.Name(), exts) {
				continue
			}
			it.images = append(it.images, filepath.Join(dir, e.Name(), f.Name()))
		}
		sort.Strings(it.images)
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].name < items[j].name })
	return items, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
