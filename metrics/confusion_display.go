package metrics

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/textpipe/pkg/errors"
)

// ConfusionMatrixDisplay renders a confusion matrix as a heatmap chart. It
// only computes and renders; it has no other side effects.
type ConfusionMatrixDisplay struct {
	Matrix *ConfusionMatrix
	Title  string
}

// NewConfusionMatrixDisplay builds a display for predictions against true
// labels.
func NewConfusionMatrixDisplay(yTrue, yPred *mat.VecDense) (*ConfusionMatrixDisplay, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	return &ConfusionMatrixDisplay{Matrix: cm, Title: "Confusion matrix"}, nil
}

// confusionGrid adapts a ConfusionMatrix to plotter.GridXYZ. Rows are true
// classes and columns predicted classes; the y axis is flipped so the first
// class renders at the top, matching the usual confusion-matrix layout.
type confusionGrid struct {
	cm *ConfusionMatrix
}

func (g confusionGrid) Dims() (c, r int) {
	n := len(g.cm.Labels)
	return n, n
}

func (g confusionGrid) Z(c, r int) float64 {
	n := len(g.cm.Labels)
	return float64(g.cm.Counts[n-1-r][c])
}

func (g confusionGrid) X(c int) float64 {
	return g.cm.Labels[c]
}

func (g confusionGrid) Y(r int) float64 {
	n := len(g.cm.Labels)
	return g.cm.Labels[n-1-r]
}

// Plot builds the heatmap chart.
func (d *ConfusionMatrixDisplay) Plot() (*plot.Plot, error) {
	if d.Matrix == nil || len(d.Matrix.Labels) == 0 {
		return nil, errors.NewValueError("ConfusionMatrixDisplay.Plot", "empty confusion matrix")
	}

	p := plot.New()
	p.Title.Text = d.Title
	p.X.Label.Text = "Predicted label"
	p.Y.Label.Text = "True label"

	hm := plotter.NewHeatMap(confusionGrid{cm: d.Matrix}, palette.Heat(16, 1))
	p.Add(hm)
	return p, nil
}

// Save renders the chart and writes it to path; the format follows the file
// extension (png, svg, pdf, ...).
func (d *ConfusionMatrixDisplay) Save(width, height vg.Length, path string) error {
	p, err := d.Plot()
	if err != nil {
		return err
	}
	if err := p.Save(width, height, path); err != nil {
		return errors.Wrap(err, "failed to save confusion matrix chart")
	}
	return nil
}
