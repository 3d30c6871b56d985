package movie

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
)

var pageTemplate = template.Must(template.New("movie").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; background: #111; color: #eee; text-align: center; }
img { max-width: 95vw; max-height: 80vh; }
.controls { margin: 12px; }
</style>
</head>
<body>
<h3>{{.Title}}</h3>
<img id="frame" src="" alt="frame">
<div class="controls">
<button id="prev">&lt;</button>
<button id="play">Pause</button>
<button id="next">&gt;</button>
<input id="pos" type="range" min="0" max="{{.Last}}" value="0">
<label>fps <input id="fps" type="number" min="1" max="30" value="{{.Framerate}}"></label>
<div id="label"></div>
</div>
<script>
const frames = {{.Frames}};
let idx = 0, timer = null;
const img = document.getElementById('frame');
const pos = document.getElementById('pos');
const label = document.getElementById('label');
const fps = document.getElementById('fps');
function show(i) {
  idx = (i + frames.length) % frames.length;
  img.src = frames[idx];
  pos.value = idx;
  label.textContent = (idx + 1) + ' / ' + frames.length + '  ' + frames[idx].split('/').pop();
}
function start() {
  stop();
  timer = setInterval(() => show(idx + 1), 1000 / Math.max(1, Number(fps.value) || 1));
  document.getElementById('play').textContent = 'Pause';
}
function stop() {
  if (timer) clearInterval(timer);
  timer = null;
  document.getElementById('play').textContent = 'Play';
}
document.getElementById('play').addEventListener('click', () => timer ? stop() : start());
document.getElementById('prev').addEventListener('click', () => { stop(); show(idx - 1); });
document.getElementById('next').addEventListener('click', () => { stop(); show(idx + 1); });
pos.addEventListener('input', () => { stop(); show(Number(pos.value)); });
fps.addEventListener('change', () => { if (timer) start(); });
frames.forEach(f => { const p = new Image(); p.src = f; });
show(0);
start();
</script>
</body>
</html>
`))

// PageWriter renders standalone HTML frame players for a file selection.
type PageWriter struct {
	Dir       string
	URLBase   string
	SynopDir  string
	Framerate int
	// Frames maps synoptic PNG paths to the URLs the browser loads.
	Frames *lwa.PathMapper
	Log    *slog.Logger
}

// Write builds a player for the selected image files and returns its URL.
// Files may be archive URLs or local paths; only their base names matter.
func (p PageWriter) Write(ctx context.Context, files []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	frames := ExistingFrames(p.SynopDir, baseNames(files))
	if len(frames) == 0 {
		return "", ErrNoFrames
	}
	sort.Strings(frames)

	rate := p.Framerate
	if rate <= 0 {
		rate = 6
	}
	title := "LWA movie"
	if ts, err := lwa.ImageObsTime(frames[0]); err == nil {
		title = fmt.Sprintf("LWA movie %s (%d frames)", ts.Format("2006-01-02 15:04"), len(frames))
	}

	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, map[string]any{
		"Title":     title,
		"Frames":    p.Frames.ToURLs(frames),
		"Last":      len(frames) - 1,
		"Framerate": rate,
	})
	if err != nil {
		return "", fmt.Errorf("render movie page: %w", err)
	}

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return "", err
	}
	name := uuid.NewString() + ".html"
	if err := os.WriteFile(filepath.Join(p.Dir, name), buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	logging.OrDefault(p.Log).Info("movie page written", "name", name, "frames", len(frames))
	return strings.TrimRight(p.URLBase, "/") + "/" + name, nil
}

func baseNames(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if i := strings.IndexAny(f, "?#"); i >= 0 {
			f = f[:i]
		}
		out = append(out, path.Base(f))
	}
	return out
}
