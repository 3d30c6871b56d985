package plot

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwa-query-web/internal/lwa"
)

var t0 = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func TestCompressSegments(t *testing.T) {
	assert.Nil(t, CompressSegments(nil, time.Minute))

	got := CompressSegments([]time.Time{at(120), at(0), at(60), at(500), at(530)}, time.Minute)
	want := []Segment{{Start: at(0), End: at(120)}, {Start: at(500), End: at(530)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}

	single := CompressSegments([]time.Time{at(5)}, time.Minute)
	assert.Equal(t, []Segment{{Start: at(5), End: at(5)}}, single)
}

func TestAvailability(t *testing.T) {
	lists := lwa.FileLists{
		lwa.KindSpecFITS: {{Path: "a.fits", ObsTime: at(0)}},
		lwa.KindSlowLev1: {
			{Path: "1", ObsTime: at(0)},
			{Path: "2", ObsTime: at(500)},
			{Path: "3", ObsTime: at(2000)},
		},
	}
	fig := Availability(lists)

	require.Len(t, fig.Data, 4)
	spec := fig.Data[0]
	assert.Equal(t, "markers", spec.Mode)
	assert.Equal(t, "N(spec_fits) = 1", spec.Name)
	assert.Equal(t, 8, spec.Marker.Size)
	assert.Equal(t, "#1f77b4", spec.Marker.Color)

	seg1, seg2 := fig.Data[1], fig.Data[2]
	assert.Equal(t, "lines", seg1.Mode)
	assert.Equal(t, []any{"2025-04-10T12:00:00", "2025-04-10T12:08:20"}, seg1.X)
	assert.True(t, seg1.ShowLegend)
	assert.False(t, seg2.ShowLegend)
	assert.Equal(t, "N(image_lev1) = 3", seg2.Name)
	assert.Equal(t, 15, seg2.Line.Width)

	empty := fig.Data[3]
	assert.Equal(t, "N(image_lev15) = 0", empty.Name)
	assert.Equal(t, []any{nil}, empty.X)
	assert.Equal(t, []any{"image_lev15"}, empty.Y)

	assert.Equal(t, "Data Availability", fig.Layout.Title.Text)
	assert.Equal(t, 400, fig.Layout.Height)
	assert.Equal(t, []string{"spec_fits", "image_lev1", "image_lev15"}, fig.Layout.YAxis.CategoryArray)
}

func TestFigure_JSONString(t *testing.T) {
	s, err := Availability(nil).JSONString()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &decoded))
	assert.Len(t, decoded["data"], 3)
	assert.Contains(t, s, `"x":[null]`)
}

func TestRenderECharts(t *testing.T) {
	var buf bytes.Buffer
	lists := lwa.FileLists{lwa.KindSlowLev15: {{Path: "x", ObsTime: at(0)}}}
	require.NoError(t, RenderECharts(&buf, lists, "2025-04-10"))
	assert.Contains(t, buf.String(), "Data Availability")
	assert.Contains(t, buf.String(), "N(image_lev15) = 1")
}
