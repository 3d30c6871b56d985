package http

import (
	"bytes"
	"html/template"
	nethttp "net/http"
	"time"

	"lwa-query-web/internal/lwa"
)

// pageSettings are the deployment flags rendered into the page script.
type pageSettings struct {
	Prefix                   string `json:"url_prefix"`
	AlwaysShowMovieContainer bool   `json:"always_show_movie_container"`
	GuardStale               bool   `json:"guard_stale"`
	SendCadence              bool   `json:"send_cadence"`
	ImageType                string `json:"image_type"`
}

func dashboardHandler(settings pageSettings) nethttp.HandlerFunc {
	return func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		start, end := lwa.DefaultRange(time.Now())
		var buf bytes.Buffer
		err := dashboardTemplate.Execute(&buf, map[string]any{
			"Settings":     settings,
			"DefaultStart": start,
			"DefaultEnd":   end,
		})
		if err != nil {
			nethttp.Error(w, "failed to render page", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(nethttp.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

func faviconHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusNoContent)
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(dashboardHTML))

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>OVRO-LWA Data Query</title>
  <script src="https://cdn.plot.ly/plotly-2.35.2.min.js"></script>
  <style>
    :root {
      --lwa-blue: #0e5d8f;
      --lwa-blue-2: #0971b2;
      --bg: #f7f7f7;
      --paper: #fff;
      --text: #333;
      --muted: #777;
      --line: #ddd;
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      background: var(--bg);
      color: var(--text);
      font-family: "Open Sans", "Helvetica Neue", Helvetica, Arial, sans-serif;
      font-size: 14px;
    }

    header {
      background: linear-gradient(to right, var(--lwa-blue) 0, var(--lwa-blue-2) 100%);
      color: #fff;
      padding: 16px 24px;
    }

    header h1 { margin: 0; font-size: 22px; font-weight: 600; }

    main { max-width: 1480px; margin: 0 auto; padding: 16px; }

    .panel {
      background: var(--paper);
      border: 1px solid var(--line);
      border-radius: 4px;
      padding: 12px 16px;
      margin-bottom: 16px;
    }

    .form-row { display: flex; gap: 12px; align-items: end; flex-wrap: wrap; }
    .form-row label { display: flex; flex-direction: column; font-weight: 600; gap: 4px; }
    .lists { display: grid; grid-template-columns: repeat(3, 1fr); gap: 16px; }
    .lists select { width: 100%; height: 260px; font-family: monospace; font-size: 12px; }
    .actions { display: flex; gap: 8px; margin-top: 8px; flex-wrap: wrap; }
    .muted { color: var(--muted); }
    #movie-container { display: none; gap: 16px; }
    #movie-container.visible { display: flex; flex-wrap: wrap; }
    #movie-container video, #movie-container img { max-width: 640px; width: 100%; }
    .hidden { display: none; }
  </style>
</head>
<body>
  <header><h1>OVRO-LWA Data Query</h1></header>
  <main>
    <section class="panel">
      <div class="form-row">
        <label>Start (UTC)<input id="start" type="datetime-local" step="1" value="{{.DefaultStart}}"></label>
        <label>End (UTC)<input id="end" type="datetime-local" step="1" value="{{.DefaultEnd}}"></label>
        <label>Cadence (s)<input id="cadence" type="text" placeholder="optional" size="8"></label>
        <button id="query-btn">Query</button>
      </div>
    </section>

    <section class="panel">
      <div class="actions">
        <button id="prev-day">-1 day</button>
        <button id="next-day">+1 day</button>
        <span id="preview-day" class="muted"></span>
      </div>
      <div id="movie-container">
        <div>
          <video id="movie-player" class="hidden" controls muted loop></video>
          <p id="movie-message" class="muted"></p>
        </div>
        <div>
          <img id="spec-image" class="hidden" alt="spectrogram">
          <p id="spec-message" class="muted"></p>
        </div>
      </div>
    </section>

    <section class="panel lists">
      <div>
        <h3>Spectrogram FITS</h3>
        <select id="spec-list" multiple></select>
        <div class="actions">
          <button id="bundle-spec_fits">Generate bundle</button>
          <button id="download-spec_fits" disabled>Download</button>
        </div>
      </div>
      <div>
        <h3>Level 1 images</h3>
        <select id="image-lev1-list" multiple></select>
        <div class="actions">
          <button id="bundle-slow_lev1">Generate bundle</button>
          <button id="download-slow_lev1" disabled>Download</button>
          <button id="movie-slow_lev1">Movie</button>
        </div>
      </div>
      <div>
        <h3>Level 1.5 images</h3>
        <select id="image-lev15-list" multiple></select>
        <div class="actions">
          <button id="bundle-slow_lev15">Generate bundle</button>
          <button id="download-slow_lev15" disabled>Download</button>
          <button id="movie-slow_lev15">Movie</button>
        </div>
      </div>
    </section>

    <section class="panel">
      <div id="plot"></div>
    </section>
  </main>

  <script>
    const settings = {{.Settings}};
    const kinds = { spec_fits: 'spec-list', slow_lev1: 'image-lev1-list', slow_lev15: 'image-lev15-list' };
    const byId = (id) => document.getElementById(id);

    const state = { queryVersion: 0, movieOffset: 0, archives: {} };

    function readRange() {
      return { start: byId('start').value, end: byId('end').value, cadence: byId('cadence').value.trim() };
    }

    function rangeForm(q) {
      q = q || readRange();
      const f = new FormData();
      f.append('start', q.start);
      f.append('end', q.end);
      if (settings.send_cadence && q.cadence) f.append('cadence', q.cadence);
      return f;
    }

    async function postJSON(path, form) {
      const r = await fetch(settings.url_prefix + path, { method: 'POST', body: form });
      if (!r.ok) {
        const body = await r.text();
        const err = new Error(body || (path + ' -> ' + r.status));
        err.body = body;
        throw err;
      }
      return r.json();
    }

    function isStale(v) {
      return settings.guard_stale && v !== state.queryVersion;
    }

    function shiftedStart(base, offset) {
      const d = new Date(base.slice(0, 10) + 'T00:00:00Z');
      d.setUTCDate(d.getUTCDate() + offset);
      return d.toISOString().slice(0, 10) + 'T12:00:00';
    }

    function fillList(kind, files) {
      const sel = byId(kinds[kind]);
      sel.innerHTML = '';
      for (const f of files) {
        const opt = document.createElement('option');
        opt.value = f;
        opt.textContent = f.split('/').pop();
        sel.appendChild(opt);
      }
    }

    function selection(kind) {
      const sel = byId(kinds[kind]);
      const picked = Array.from(sel.selectedOptions).map((o) => o.value);
      return picked.length ? picked : Array.from(sel.options).map((o) => o.value);
    }

    function setDownload(kind, name) {
      if (name) state.archives[kind] = name; else delete state.archives[kind];
      byId('download-' + kind).disabled = !name;
    }

    async function refreshPreview(base, offset, guard) {
      const start = shiftedStart(base, offset);
      const f = new FormData();
      f.append('start', start);
      let p;
      try {
        p = await postJSON('/api/flare/spec_movie', f);
      } catch (e) {
        console.error('preview', e);
        return;
      }
      if (guard !== undefined && isStale(guard)) return;

      byId('preview-day').textContent = start.slice(0, 10);
      const player = byId('movie-player');
      if (p.movie_path) {
        player.src = p.movie_path;
        player.classList.remove('hidden');
        byId('movie-message').textContent = '';
      } else {
        player.removeAttribute('src');
        player.classList.add('hidden');
        byId('movie-message').textContent = p.movie_message || 'The image movie does not exist for the selected day.';
      }
      const img = byId('spec-image');
      if (p.spec_png_path) {
        img.src = p.spec_png_path;
        img.classList.remove('hidden');
        byId('spec-message').textContent = '';
      } else {
        img.removeAttribute('src');
        img.classList.add('hidden');
        byId('spec-message').textContent = p.spec_message || 'The spectrogram does not exist for the selected day.';
      }
      const visible = settings.always_show_movie_container || !!p.movie_path || !!p.spec_png_path;
      byId('movie-container').classList.toggle('visible', visible);
    }

    async function refreshPlot(q, guard) {
      try {
        const res = await postJSON('/plot', rangeForm(q));
        if (isStale(guard)) return;
        const fig = JSON.parse(res.plot);
        Plotly.react('plot', fig.data, fig.layout);
      } catch (e) {
        console.error('plot', e);
      }
    }

    async function runQuery() {
      const thisQuery = ++state.queryVersion;
      const q = readRange();
      let res;
      try {
        res = await postJSON('/api/flare/query', rangeForm(q));
      } catch (e) {
        console.error('query', e);
        return;
      }
      if (isStale(thisQuery)) return;

      for (const kind of Object.keys(kinds)) {
        fillList(kind, res[kind] || []);
        setDownload(kind, null);
      }
      state.movieOffset = 0;
      refreshPreview(q.start, 0, thisQuery);
      refreshPlot(q, thisQuery);
    }

    async function generateBundle(kind) {
      setDownload(kind, null);
      const f = rangeForm();
      f.append('selected_files', JSON.stringify(selection(kind)));
      try {
        const res = await postJSON('/generate_bundle/' + kind, f);
        if (!res.archive_name) throw new Error('');
        setDownload(kind, res.archive_name);
      } catch (e) {
        alert(e.body || 'Failed to generate ' + kind + ' bundle.');
      }
    }

    async function generateMovie(kind) {
      const f = new FormData();
      f.append('selected_files', JSON.stringify(selection(kind)));
      try {
        const res = await postJSON('/generate_html_movie', f);
        if (res.movie_url) window.open(res.movie_url, '_blank');
        else alert('Movie URL not returned.');
      } catch (e) {
        alert('Failed to generate movie HTML.');
      }
    }

    function adjustOffset(delta) {
      state.movieOffset += delta;
      refreshPreview(byId('start').value, state.movieOffset);
    }

    byId('query-btn').addEventListener('click', runQuery);
    byId('prev-day').addEventListener('click', () => adjustOffset(-1));
    byId('next-day').addEventListener('click', () => adjustOffset(1));
    for (const kind of Object.keys(kinds)) {
      byId('bundle-' + kind).addEventListener('click', () => generateBundle(kind));
      byId('download-' + kind).addEventListener('click', () => {
        const name = state.archives[kind];
        if (name) window.location.href = settings.url_prefix + '/download_ready_bundle/' + encodeURIComponent(name);
      });
      const movieBtn = byId('movie-' + kind);
      if (movieBtn) movieBtn.addEventListener('click', () => generateMovie(kind));
    }

    runQuery();
  </script>
</body>
</html>`
