package predictor

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/avoskamp/go-predictor/timeseries"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// LineArtifact generates an echart line chart overlaying the historical
// observations with the forecast horizon and its confidence bounds.
func LineArtifact(w *timeseries.Window, a *Artifact) *charts.Line {
	line := charts.NewLine()

	title := "Forecast"
	if a.ChosenModel != "" {
		title = fmt.Sprintf("Forecast (%s)", a.ChosenModel)
	}
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
	)

	t := make([]time.Time, 0, w.Len()+len(a.Points))
	t = append(t, w.T...)

	lineDataActual := make([]opts.LineData, 0, w.Len())
	for _, y := range w.Y {
		lineDataActual = append(lineDataActual, opts.LineData{Value: y})
	}

	lineDataForecast := make([]opts.LineData, 0, len(a.Points))
	lineDataUpper := make([]opts.LineData, 0, len(a.Points))
	lineDataLower := make([]opts.LineData, 0, len(a.Points))
	for _, p := range a.Points {
		t = append(t, p.T)
		lineDataForecast = append(lineDataForecast, opts.LineData{Value: p.Value})
		lineDataUpper = append(lineDataUpper, opts.LineData{Value: p.Upper})
		lineDataLower = append(lineDataLower, opts.LineData{Value: p.Lower})
	}

	// pad the forecast series so they start where history ends
	pad := make([]opts.LineData, w.Len())
	for i := range pad {
		pad[i] = opts.LineData{Value: "-"}
	}

	line.SetXAxis(t).
		AddSeries("Actual", lineDataActual).
		AddSeries("Forecast", append(append([]opts.LineData{}, pad...), lineDataForecast...)).
		AddSeries("Upper", append(append([]opts.LineData{}, pad...), lineDataUpper...)).
		AddSeries("Lower", append(append([]opts.LineData{}, pad...), lineDataLower...))
	return line
}

// LineFolds generates an echart line chart of per-candidate validation
// scores, one series per candidate across fold indexes.
func LineFolds(a *Artifact) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: "Cross-Validation MAPE by Fold",
			},
		),
	)

	maxFolds := 0
	for _, diag := range a.Diagnostics {
		if diag.Result != nil && len(diag.Result.Folds) > maxFolds {
			maxFolds = len(diag.Result.Folds)
		}
	}

	folds := make([]int, maxFolds)
	for i := range folds {
		folds[i] = i
	}
	line = line.SetXAxis(folds)

	for _, diag := range a.Diagnostics {
		if diag.Result == nil {
			continue
		}
		lineData := make([]opts.LineData, 0, len(diag.Result.Folds))
		for _, fold := range diag.Result.Folds {
			lineData = append(lineData, opts.LineData{Value: fold.Scores.MAPE})
		}
		line = line.AddSeries(diag.Model, lineData)
	}
	return line
}

// Plot renders the artifact and its validation diagnostics as a standalone
// HTML page at path.
func (a *Artifact) Plot(w *timeseries.Window, path string) error {
	page := components.NewPage()
	page.AddCharts(
		LineArtifact(w, a),
		LineFolds(a),
	)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return page.Render(io.MultiWriter(file))
}
