package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"lwa-query-web/internal/lwa"
	"lwa-query-web/internal/plot"
)

func TestTerminalView(t *testing.T) {
	var buf bytes.Buffer
	v := newTerminalView(&buf)

	v.SetFileList(lwa.KindSlowLev1, []string{"/a.hdf", "/b.hdf"})
	v.HideMovie("no movie")
	v.ShowSpectrogram("/spec.png")
	v.RenderPlot(plot.Figure{Data: []plot.Trace{
		{Name: "lev1", X: []any{"2024-01-01T00:00:00", "2024-01-01T02:00:00"}},
		{Name: "empty"},
	}})
	v.Alert("  Failed to generate slow_lev1 bundle.\n")

	out := buf.String()
	assert.Contains(t, out, "slow_lev1 (2 files)\n  /a.hdf\n  /b.hdf\n")
	assert.Contains(t, out, "movie: no movie\n")
	assert.Contains(t, out, "spectrogram: /spec.png\n")
	assert.Contains(t, out, "2024-01-01T00:00:00 .. 2024-01-01T02:00:00 (2 points)")
	assert.NotContains(t, out, "empty")
	assert.Contains(t, out, "! Failed to generate slow_lev1 bundle.\n")
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
}
