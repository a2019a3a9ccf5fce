package stats

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"arcevo/internal/model"
)

// WriteFitnessChart renders the fitness and outcome-rate history of a run
// as a standalone HTML page.
func WriteFitnessChart(path, runID string, generations []model.GenerationRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return RenderFitnessChart(f, runID, generations)
}

func RenderFitnessChart(w io.Writer, runID string, generations []model.GenerationRecord) error {
	n := len(generations)
	xAxis := make([]string, n)
	average := make([]opts.LineData, n)
	best := make([]opts.LineData, n)
	worst := make([]opts.LineData, n)
	rateSeries := map[string][]opts.LineData{}
	rateNames := []string{"success", "timeout", "datarace", "deadlock", "error"}
	for _, name := range rateNames {
		rateSeries[name] = make([]opts.LineData, n)
	}

	for i, g := range generations {
		xAxis[i] = strconv.Itoa(g.Generation)
		if g.Unscored {
			// Gaps in the fitness lines.
			average[i], best[i], worst[i] = opts.LineData{Value: "-"}, opts.LineData{Value: "-"}, opts.LineData{Value: "-"}
		} else {
			average[i] = opts.LineData{Value: g.AverageFitness}
			best[i] = opts.LineData{Value: g.BestFitness, Name: fmt.Sprintf("individual %d", g.BestIndividualID)}
			worst[i] = opts.LineData{Value: g.MinFitness}
		}
		rateSeries["success"][i] = opts.LineData{Value: g.MeanRates.Success}
		rateSeries["timeout"][i] = opts.LineData{Value: g.MeanRates.Timeout}
		rateSeries["datarace"][i] = opts.LineData{Value: g.MeanRates.Datarace}
		rateSeries["deadlock"][i] = opts.LineData{Value: g.MeanRates.Deadlock}
		rateSeries["error"][i] = opts.LineData{Value: g.MeanRates.Error}
	}

	fitness := newGenerationLine(fmt.Sprintf("Fitness for run %s", runID), "fitness")
	fitness.SetXAxis(xAxis).
		AddSeries("average", average).
		AddSeries("best", best).
		AddSeries("min", worst)

	rates := newGenerationLine("Mean outcome rates", "rate")
	rates.SetXAxis(xAxis)
	for _, name := range rateNames {
		rates.AddSeries(name, rateSeries[name])
	}

	page := components.NewPage()
	page.AddCharts(fitness, rates)
	return page.Render(w)
}

func newGenerationLine(title, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "generation"}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      yName,
			SplitLine: &opts.SplitLine{Show: opts.Bool(true)},
		}),
	)
	return line
}
