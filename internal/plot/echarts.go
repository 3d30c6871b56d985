package plot

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"lwa-query-web/internal/lwa"
)

// RenderECharts writes the availability of lists as a standalone HTML chart.
// Spans are drawn as their start and end points.
func RenderECharts(w io.Writer, lists lwa.FileLists, subtitle string) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LWA Data Availability", Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Data Availability", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: Labels()}),
	)

	for _, kind := range lwa.Kinds() {
		label := kind.PlotLabel()
		records := lists[kind]
		data := make([]opts.ScatterData, 0, len(records))
		if kind == lwa.KindSpecFITS {
			for _, r := range records {
				data = append(data, opts.ScatterData{Value: []interface{}{lwa.FormatTime(r.ObsTime), label}})
			}
		} else {
			for _, seg := range CompressSegments(obsTimes(records), SegmentGap(kind)) {
				data = append(data,
					opts.ScatterData{Value: []interface{}{lwa.FormatTime(seg.Start), label}},
					opts.ScatterData{Value: []interface{}{lwa.FormatTime(seg.End), label}},
				)
			}
		}
		scatter.AddSeries(fmt.Sprintf("N(%s) = %d", label, len(records)), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: Color(kind)}),
		)
	}
	return scatter.Render(w)
}
