package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-itemsense/internal/log"
	"github.com/teslashibe/go-itemsense/pkg/evaluate"
	"github.com/teslashibe/go-itemsense/pkg/vision"
	"github.com/teslashibe/go-itemsense/pkg/vision/opencv"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		captures string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Report per-item accuracy of a model on labeled captures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if captures == "" {
				captures = a.cfg.Paths.Captures
			}

			art, labels, err := a.resolveModel()
			if err != nil {
				return err
			}
			clf, err := a.loadClassifier(art, labels)
			if err != nil {
				return err
			}
			defer clf.Close()

			report, err := evaluate.Run(cmd.Context(), evaluate.Options{
				CapturesDir: captures,
				Progress:    cmd.ErrOrStderr(),
				Logger:      a.logger,
			}, clf, labels, a.loadFrame)
			if err != nil {
				return err
			}

			if err := report.WriteChart(cmd.ErrOrStderr()); err != nil {
				return err
			}
			if out == "" {
				if err := report.WriteCSV(cmd.OutOrStdout()); err != nil {
					return err
				}
			} else if err := writeFile(out, report.WriteCSV); err != nil {
				return err
			}

			log.Info("✅ evaluation complete", "images", report.Total(), "accuracy", fmt.Sprintf("%.1f%%", report.Overall()*100))
			if out != "" {
				log.Info("📄 report written", "path", out)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&captures, "captures", "", "directory with one folder per item (default data/captures)")
	f.StringVar(&out, "out", "", "CSV output file (default stdout)")
	return cmd
}

func loadImage(path string) (vision.Frame, error) {
	return opencv.LoadImage(path)
}

// writeFile creates path, fills it with write and reports the close error,
// which is where a failed flush to disk shows up.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
