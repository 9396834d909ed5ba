// Package charts renders cash-flow series as PNG images for the HTTP
// layer. Values are plotted in euros; each month stands alone, nothing
// is cumulative.
package charts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"bilancio/internal/core"
)

var ErrNoData = errors.New("no data points to render")

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// CashFlowPNG renders income, expense and balance lines over the
// series months.
func (r *Renderer) CashFlowPNG(series []core.CashFlowPoint) ([]byte, error) {
	if len(series) == 0 {
		return nil, ErrNoData
	}

	xValues := make([]float64, len(series))
	incomeValues := make([]float64, len(series))
	expenseValues := make([]float64, len(series))
	balanceValues := make([]float64, len(series))
	ticks := make([]chart.Tick, len(series))

	for i, point := range series {
		xValues[i] = float64(i)
		incomeValues[i] = point.Income.Euros()
		expenseValues[i] = point.Expense.Euros()
		balanceValues[i] = point.Balance.Euros()
		ticks[i] = chart.Tick{Value: float64(i), Label: string(point.Month)}
	}

	graph := chart.Chart{
		Width:  1200,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
		XAxis: chart.XAxis{
			Ticks: ticks,
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.0f€", v.(float64))
			},
			Style: chart.Style{
				FontSize:  12,
				FontColor: chart.ColorBlack,
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Income",
				XValues: xValues,
				YValues: incomeValues,
				Style: chart.Style{
					StrokeColor: chart.ColorGreen,
					StrokeWidth: 2,
				},
			},
			chart.ContinuousSeries{
				Name:    "Expenses",
				XValues: xValues,
				YValues: expenseValues,
				Style: chart.Style{
					StrokeColor: chart.ColorRed,
					StrokeWidth: 2,
				},
			},
			chart.ContinuousSeries{
				Name:    "Balance",
				XValues: xValues,
				YValues: balanceValues,
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
					StrokeWidth: 3,
				},
			},
		},
	}

	graph.Elements = []chart.Renderable{
		chart.Legend(&graph, chart.Style{
			FontSize:  12,
			FontColor: chart.ColorBlack,
		}),
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render cash flow chart: %w", err)
	}
	return buffer.Bytes(), nil
}

// CategoryPiePNG renders a month's expense distribution by category.
func (r *Renderer) CategoryPiePNG(summary core.MonthSummary) ([]byte, error) {
	if len(summary.PerCategory) == 0 {
		return nil, ErrNoData
	}

	values := make([]chart.Value, 0, len(summary.PerCategory))
	for _, cat := range summary.PerCategory {
		if !cat.Amount.IsPositive() {
			continue
		}
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s: %s", cat.Name, core.FormatEuros(cat.Amount.Cents)),
			Value: cat.Amount.Euros(),
		})
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	pie := chart.PieChart{
		Title:  string(summary.Month),
		Width:  800,
		Height: 800,
		Values: values,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   50,
				Right:  50,
				Bottom: 50,
			},
			FillColor: chart.ColorWhite,
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render category pie chart: %w", err)
	}
	return buffer.Bytes(), nil
}
