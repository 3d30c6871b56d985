package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"lwa-query-web/internal/lwa"
	"lwa-query-web/internal/plot"
)

// terminalView prints what the page would show.
type terminalView struct {
	w io.Writer
}

func newTerminalView(w io.Writer) *terminalView {
	return &terminalView{w: w}
}

func (v *terminalView) SetFileList(kind lwa.Kind, files []string) {
	fmt.Fprintf(v.w, "%s (%d files)\n", kind, len(files))
	for _, f := range files {
		fmt.Fprintf(v.w, "  %s\n", f)
	}
}

func (v *terminalView) ShowMovie(path string) {
	fmt.Fprintf(v.w, "movie: %s\n", path)
}

func (v *terminalView) HideMovie(message string) {
	fmt.Fprintf(v.w, "movie: %s\n", message)
}

func (v *terminalView) ShowSpectrogram(path string) {
	fmt.Fprintf(v.w, "spectrogram: %s\n", path)
}

func (v *terminalView) HideSpectrogram(message string) {
	fmt.Fprintf(v.w, "spectrogram: %s\n", message)
}

func (v *terminalView) SetMovieContainerVisible(bool) {}

// RenderPlot summarizes each availability trace as its span and point count.
func (v *terminalView) RenderPlot(fig plot.Figure) {
	traces := append([]plot.Trace(nil), fig.Data...)
	sort.SliceStable(traces, func(i, j int) bool { return traces[i].Name < traces[j].Name })
	fmt.Fprintln(v.w, "availability:")
	for _, t := range traces {
		if len(t.X) == 0 {
			continue
		}
		fmt.Fprintf(v.w, "  %-12s %v .. %v (%d points)\n", t.Name, t.X[0], t.X[len(t.X)-1], len(t.X))
	}
}

func (v *terminalView) SetDownloadEnabled(lwa.Kind, bool) {}

func (v *terminalView) Alert(message string) {
	fmt.Fprintf(v.w, "! %s\n", strings.TrimSpace(message))
}

func (v *terminalView) Open(url string) {
	fmt.Fprintf(v.w, "open: %s\n", url)
}

func (v *terminalView) Navigate(url string) {
	fmt.Fprintf(v.w, "download: %s\n", url)
}

// Saved reports a finished archive download.
func (v *terminalView) Saved(path string, n int64) {
	fmt.Fprintf(v.w, "saved %s (%s) at %s\n", path, humanize.Bytes(uint64(n)), time.Now().Format(time.Kitchen))
}
