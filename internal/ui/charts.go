package ui

import (
	"context"
	"fmt"

	"github.com/kilnworks/kiln/internal/registry"
	"go.uber.org/zap"
)

// ChartAgentName is the statically known agent serviced by the chart
// visualizer. It is owned by the component, never supplied by the caller.
const ChartAgentName = "chart_data_generator"

// ChartComponentID identifies the chart visualizer surface.
const ChartComponentID = "chart-visualizer"

// ChartVisualizer resolves chart data requests against the chart data
// generator agent.
type ChartVisualizer struct {
	reg    *registry.Registry
	logger *zap.Logger
}

// NewChartVisualizer builds the chart component and registers its handlers.
func NewChartVisualizer(reg *registry.Registry, logger *zap.Logger) *Component {
	cv := &ChartVisualizer{reg: reg, logger: logger}

	c := NewComponent(
		ChartComponentID,
		"Chart Visualizer",
		"Visualizes data produced by the chart data generator agent",
		[]string{"visualization", "interactive"},
		map[string]any{
			"title":     "Chart Visualizer",
			"width":     "80%",
			"height":    "80%",
			"resizable": true,
		},
	)
	c.RegisterHandler("get_bar_chart_data", cv.handleBarChart)
	c.RegisterHandler("get_line_chart_data", cv.handleLineChart)
	c.RegisterHandler("get_pie_chart_data", cv.handlePieChart)
	c.RegisterHandler("get_scatter_plot_data", cv.handleScatterPlot)
	c.RegisterHandler("get_chart_data", cv.handleChartData)
	return c
}

// callTool resolves the chart agent and invokes one of its tools.
func (cv *ChartVisualizer) callTool(ctx context.Context, toolName string, args map[string]any) (map[string]any, error) {
	inst, ok := cv.reg.Lookup(ChartAgentName)
	if !ok {
		return nil, fmt.Errorf("agent %s not found: %w", ChartAgentName, ErrTargetNotFound)
	}
	tool, ok := inst.Tool(toolName)
	if !ok {
		return nil, fmt.Errorf("%s %w", toolName, ErrToolNotFound)
	}

	result, err := tool.Func(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", toolName, err)
	}
	return map[string]any{"success": true, "chart_data": result}, nil
}

func (cv *ChartVisualizer) handleBarChart(ctx context.Context, params map[string]any) (map[string]any, error) {
	args := map[string]any{
		"categories":     params["categories"],
		"min_value":      numberParam(params, "min_value", 0),
		"max_value":      numberParam(params, "max_value", 100),
		"num_categories": numberParam(params, "num_categories", 5),
	}
	cv.logger.Info("bar chart request", zap.Any("num_categories", args["num_categories"]))
	return cv.callTool(ctx, "generate_bar_chart_data", args)
}

func (cv *ChartVisualizer) handleLineChart(ctx context.Context, params map[string]any) (map[string]any, error) {
	args := map[string]any{
		"points":       numberParam(params, "points", 20),
		"min_value":    numberParam(params, "min_value", 0),
		"max_value":    numberParam(params, "max_value", 100),
		"num_series":   numberParam(params, "num_series", 1),
		"series_names": params["series_names"],
	}
	return cv.callTool(ctx, "generate_line_chart_data", args)
}

func (cv *ChartVisualizer) handlePieChart(ctx context.Context, params map[string]any) (map[string]any, error) {
	args := map[string]any{
		"segments":     params["segments"],
		"min_value":    numberParam(params, "min_value", 10),
		"max_value":    numberParam(params, "max_value", 100),
		"num_segments": numberParam(params, "num_segments", 5),
	}
	return cv.callTool(ctx, "generate_pie_chart_data", args)
}

func (cv *ChartVisualizer) handleScatterPlot(ctx context.Context, params map[string]any) (map[string]any, error) {
	args := map[string]any{
		"points":       numberParam(params, "points", 50),
		"x_min":        numberParam(params, "x_min", 0),
		"x_max":        numberParam(params, "x_max", 100),
		"y_min":        numberParam(params, "y_min", 0),
		"y_max":        numberParam(params, "y_max", 100),
		"num_series":   numberParam(params, "num_series", 1),
		"series_names": params["series_names"],
	}
	return cv.callTool(ctx, "generate_scatter_plot_data", args)
}

// handleChartData multiplexes among the typed handlers by chart_type. It
// performs no logic of its own.
func (cv *ChartVisualizer) handleChartData(ctx context.Context, params map[string]any) (map[string]any, error) {
	chartType, _ := params["chart_type"].(string)
	if chartType == "" {
		chartType = "bar"
	}
	switch chartType {
	case "bar":
		return cv.handleBarChart(ctx, params)
	case "line":
		return cv.handleLineChart(ctx, params)
	case "pie":
		return cv.handlePieChart(ctx, params)
	case "scatter":
		return cv.handleScatterPlot(ctx, params)
	default:
		return nil, fmt.Errorf("unsupported chart type: %s", chartType)
	}
}

// numberParam reads a numeric parameter, falling back to def when the value
// is absent or not a number. JSON decoding yields float64 for all numbers.
func numberParam(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}
