package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderActivityChart renders an hourly activity bar chart as a standalone
// HTML page, one series per camera. Used by the debug-oriented chart
// endpoint; the real UI consumes the JSON report instead.
func RenderActivityChart(w io.Writer, r DailyReport, perCamera map[string]map[int]int) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Activity " + r.Date,
			Width:     "1000px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Hourly activity",
			Subtitle: fmt.Sprintf("date=%s events=%d", r.Date, r.TotalEvents),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "hour"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "events"}),
	)

	hours := make([]string, 24)
	for h := 0; h < 24; h++ {
		hours[h] = fmt.Sprintf("%02d", h)
	}
	bar.SetXAxis(hours)

	if len(perCamera) == 0 {
		data := make([]opts.BarData, 24)
		for h := 0; h < 24; h++ {
			data[h] = opts.BarData{Value: r.HourlyActivity[h]}
		}
		bar.AddSeries("all cameras", data)
	} else {
		for camera, hourly := range perCamera {
			data := make([]opts.BarData, 24)
			for h := 0; h < 24; h++ {
				data[h] = opts.BarData{Value: hourly[h]}
			}
			bar.AddSeries(camera, data)
		}
	}

	return bar.Render(w)
}
