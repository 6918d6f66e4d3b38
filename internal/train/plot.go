package train

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var plotColors = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
}

// PlotHistory writes loss and accuracy curves for h next to path, as
// <name>_loss<ext> and <name>_accuracy<ext>, and returns the two paths. The
// image format follows the extension (.png, .svg, .pdf, ...).
func PlotHistory(h History, path string) ([]string, error) {
	if len(h.Epochs) == 0 {
		return nil, errors.New("empty history")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	pLoss := plot.New()
	pLoss.Title.Text = "Loss"
	pLoss.X.Label.Text = "epoch"
	pAcc := plot.New()
	pAcc.Title.Text = "Accuracy"
	pAcc.X.Label.Text = "epoch"
	pAcc.Y.Min, pAcc.Y.Max = 0, 1

	series := func(f func(EpochMetrics) float64) plotter.XYs {
		pts := make(plotter.XYs, len(h.Epochs))
		for i, e := range h.Epochs {
			pts[i] = plotter.XY{X: float64(e.Epoch), Y: f(e)}
		}
		return pts
	}
	add := func(p *plot.Plot, name string, idx int, pts plotter.XYs) error {
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("%s line: %w", name, err)
		}
		l.Width = vg.Points(1.5)
		l.Color = plotColors[idx%len(plotColors)]
		p.Add(l)
		p.Legend.Add(name, l)
		return nil
	}
	if err := add(pLoss, "loss", 0, series(func(e EpochMetrics) float64 { return e.Loss })); err != nil {
		return nil, err
	}
	if err := add(pAcc, "accuracy", 0, series(func(e EpochMetrics) float64 { return e.Accuracy })); err != nil {
		return nil, err
	}
	if h.HasValidation {
		if err := add(pLoss, "val_loss", 1, series(func(e EpochMetrics) float64 { return e.ValLoss })); err != nil {
			return nil, err
		}
		if err := add(pAcc, "val_accuracy", 1, series(func(e EpochMetrics) float64 { return e.ValAccuracy })); err != nil {
			return nil, err
		}
		if h.BestEpoch > 0 {
			best := h.Best()
			s, err := plotter.NewScatter(plotter.XYs{{X: float64(best.Epoch), Y: best.ValAccuracy}})
			if err != nil {
				return nil, fmt.Errorf("best marker: %w", err)
			}
			pAcc.Add(s)
			pAcc.Legend.Add("best", s)
		}
	}
	for _, p := range []*plot.Plot{pLoss, pAcc} {
		p.Add(plotter.NewGrid())
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	lossPath, accPath := stem+"_loss"+ext, stem+"_accuracy"+ext
	if err := pLoss.Save(7*vg.Inch, 4*vg.Inch, lossPath); err != nil {
		return nil, fmt.Errorf("save loss plot: %w", err)
	}
	if err := pAcc.Save(7*vg.Inch, 4*vg.Inch, accPath); err != nil {
		return nil, fmt.Errorf("save accuracy plot: %w", err)
	}
	return []string{lossPath, accPath}, nil
}
