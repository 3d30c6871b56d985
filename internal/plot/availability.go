// Package plot builds the data-availability chart shown under the file lists.
package plot

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"lwa-query-web/internal/lwa"
)

// Segment is a continuous span of observations.
type Segment struct {
	Start time.Time
	End   time.Time
}

// CompressSegments collapses observation times into spans, starting a new
// span whenever two neighbours are more than maxGap apart.
func CompressSegments(times []time.Time, maxGap time.Duration) []Segment {
	if len(times) == 0 {
		return nil
	}
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var out []Segment
	start, prev := sorted[0], sorted[0]
	for _, t := range sorted[1:] {
		if t.Sub(prev) > maxGap {
			out = append(out, Segment{Start: start, End: prev})
			start = t
		}
		prev = t
	}
	return append(out, Segment{Start: start, End: prev})
}

var colors = map[lwa.Kind]string{
	lwa.KindSpecFITS:  "#1f77b4",
	lwa.KindSlowLev1:  "#ff7f0e",
	lwa.KindSlowLev15: "#2ca02c",
}

// Color is the series colour of kind on every availability rendering.
func Color(k lwa.Kind) string { return colors[k] }

// SegmentGap is the largest gap bridged when drawing image kinds as spans.
func SegmentGap(k lwa.Kind) time.Duration {
	if k == lwa.KindSlowLev1 {
		return 600 * time.Second
	}
	return 300 * time.Second
}

// Figure is a Plotly figure in the shape plotly.js accepts.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

type Trace struct {
	Type       string  `json:"type"`
	X          []any   `json:"x"`
	Y          []any   `json:"y"`
	Mode       string  `json:"mode"`
	Name       string  `json:"name"`
	ShowLegend bool    `json:"showlegend"`
	Marker     *Marker `json:"marker,omitempty"`
	Line       *Line   `json:"line,omitempty"`
}

type Marker struct {
	Size  int    `json:"size"`
	Color string `json:"color"`
}

type Line struct {
	Width int    `json:"width"`
	Color string `json:"color"`
}

type Font struct {
	Size int `json:"size"`
}

type Title struct {
	Text string `json:"text"`
}

type Axis struct {
	Title         Title    `json:"title"`
	TickFont      Font     `json:"tickfont"`
	CategoryOrder string   `json:"categoryorder,omitempty"`
	CategoryArray []string `json:"categoryarray,omitempty"`
}

type Legend struct {
	Font Font `json:"font"`
}

type Layout struct {
	Title  Title  `json:"title"`
	XAxis  Axis   `json:"xaxis"`
	YAxis  Axis   `json:"yaxis"`
	Legend Legend `json:"legend"`
	Height int    `json:"height"`
}

// Labels are the y categories in display order.
func Labels() []string {
	out := make([]string, 0, 3)
	for _, k := range lwa.Kinds() {
		out = append(out, k.PlotLabel())
	}
	return out
}

// Availability builds the figure for one query result. The spectrogram kind
// is drawn as markers and image kinds as thick spans; a kind without files
// still gets a legend entry.
func Availability(lists lwa.FileLists) Figure {
	fig := Figure{
		Layout: Layout{
			Title:  Title{Text: "Data Availability"},
			XAxis:  Axis{TickFont: Font{Size: 16}},
			YAxis:  Axis{TickFont: Font{Size: 16}, CategoryOrder: "array", CategoryArray: Labels()},
			Legend: Legend{Font: Font{Size: 16}},
			Height: 400,
		},
	}

	for _, kind := range lwa.Kinds() {
		label := kind.PlotLabel()
		records := lists[kind]
		name := fmt.Sprintf("N(%s) = %d", label, len(records))
		color := Color(kind)

		if kind == lwa.KindSpecFITS || len(records) == 0 {
			tr := Trace{Type: "scatter", Mode: "markers", Name: name, ShowLegend: true, Marker: &Marker{Size: 8, Color: color}}
			if len(records) == 0 {
				tr.X = []any{nil}
				tr.Y = []any{label}
			} else {
				for _, r := range records {
					tr.X = append(tr.X, lwa.FormatTime(r.ObsTime))
					tr.Y = append(tr.Y, label)
				}
			}
			fig.Data = append(fig.Data, tr)
			continue
		}

		for i, seg := range CompressSegments(obsTimes(records), SegmentGap(kind)) {
			fig.Data = append(fig.Data, Trace{
				Type:       "scatter",
				Mode:       "lines",
				X:          []any{lwa.FormatTime(seg.Start), lwa.FormatTime(seg.End)},
				Y:          []any{label, label},
				Name:       name,
				ShowLegend: i == 0,
				Line:       &Line{Width: 15, Color: color},
			})
		}
	}
	return fig
}

// JSONString encodes the figure the way the page expects it inside the
// plot response field.
func (f Figure) JSONString() (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func obsTimes(records []lwa.Record) []time.Time {
	out := make([]time.Time, 0, len(records))
	for _, r := range records {
		out = append(out, r.ObsTime)
	}
	return out
}
