// Package agents holds the built-in agent instances seeded into the
// registry at process start.
package agents

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/kilnworks/kiln/internal/registry"
	"github.com/kilnworks/kiln/internal/ui"
)

var defaultCategories = []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon", "Zeta", "Eta", "Theta"}

// NewChartDataGenerator builds the built-in chart data agent consumed by
// the chart visualizer component.
func NewChartDataGenerator() *registry.Instance {
	tools := []registry.Tool{
		{
			Name:        "generate_bar_chart_data",
			Description: "Generate random bar chart data",
			Func:        generateBarChartData,
		},
		{
			Name:        "generate_line_chart_data",
			Description: "Generate random line chart series",
			Func:        generateLineChartData,
		},
		{
			Name:        "generate_pie_chart_data",
			Description: "Generate random pie chart segments",
			Func:        generatePieChartData,
		},
		{
			Name:        "generate_scatter_plot_data",
			Description: "Generate random scatter plot points",
			Func:        generateScatterPlotData,
		},
	}
	return registry.NewInstance(ui.ChartAgentName, "Utility", false, tools)
}

func generateBarChartData(_ context.Context, args map[string]any) (any, error) {
	categories := stringsArg(args, "categories")
	if len(categories) == 0 {
		n := intArg(args, "num_categories", 5)
		categories = pickCategories(n)
	}
	minV := floatArg(args, "min_value", 0)
	maxV := floatArg(args, "max_value", 100)

	data := make([]map[string]any, len(categories))
	for i, c := range categories {
		data[i] = map[string]any{"category": c, "value": randBetween(minV, maxV)}
	}
	return map[string]any{"type": "bar", "data": data}, nil
}

func generateLineChartData(_ context.Context, args map[string]any) (any, error) {
	points := intArg(args, "points", 20)
	minV := floatArg(args, "min_value", 0)
	maxV := floatArg(args, "max_value", 100)
	numSeries := intArg(args, "num_series", 1)
	names := stringsArg(args, "series_names")

	series := make([]map[string]any, numSeries)
	for s := 0; s < numSeries; s++ {
		name := fmt.Sprintf("Series %d", s+1)
		if s < len(names) {
			name = names[s]
		}
		values := make([]map[string]any, points)
		for i := 0; i < points; i++ {
			values[i] = map[string]any{"x": i, "y": randBetween(minV, maxV)}
		}
		series[s] = map[string]any{"name": name, "values": values}
	}
	return map[string]any{"type": "line", "series": series}, nil
}

func generatePieChartData(_ context.Context, args map[string]any) (any, error) {
	segments := stringsArg(args, "segments")
	if len(segments) == 0 {
		segments = pickCategories(intArg(args, "num_segments", 5))
	}
	minV := floatArg(args, "min_value", 10)
	maxV := floatArg(args, "max_value", 100)

	data := make([]map[string]any, len(segments))
	for i, s := range segments {
		data[i] = map[string]any{"segment": s, "value": randBetween(minV, maxV)}
	}
	return map[string]any{"type": "pie", "data": data}, nil
}

func generateScatterPlotData(_ context.Context, args map[string]any) (any, error) {
	points := intArg(args, "points", 50)
	xMin := floatArg(args, "x_min", 0)
	xMax := floatArg(args, "x_max", 100)
	yMin := floatArg(args, "y_min", 0)
	yMax := floatArg(args, "y_max", 100)
	numSeries := intArg(args, "num_series", 1)
	names := stringsArg(args, "series_names")

	series := make([]map[string]any, numSeries)
	for s := 0; s < numSeries; s++ {
		name := fmt.Sprintf("Series %d", s+1)
		if s < len(names) {
			name = names[s]
		}
		values := make([]map[string]any, points)
		for i := 0; i < points; i++ {
			values[i] = map[string]any{
				"x": randBetween(xMin, xMax),
				"y": randBetween(yMin, yMax),
			}
		}
		series[s] = map[string]any{"name": name, "values": values}
	}
	return map[string]any{"type": "scatter", "series": series}, nil
}

func pickCategories(n int) []string {
	if n <= 0 {
		n = 5
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		if i < len(defaultCategories) {
			out[i] = defaultCategories[i]
		} else {
			out[i] = fmt.Sprintf("Category %d", i+1)
		}
	}
	return out
}

func randBetween(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rand.Float64()*(max-min)
}

func floatArg(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

// intArg reads a count parameter. Negative counts mean an empty dataset,
// never a failure.
func intArg(args map[string]any, key string, def int) int {
	n := int(floatArg(args, key, float64(def)))
	if n < 0 {
		return 0
	}
	return n
}

func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
