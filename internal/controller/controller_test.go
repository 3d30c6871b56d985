package controller

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwa-query-web/internal/lwa"
	"lwa-query-web/internal/plot"
)

type fakeView struct {
	mu        sync.Mutex
	lists     map[lwa.Kind][]string
	movie     string
	movieMsg  string
	spec      string
	specMsg   string
	visible   *bool
	plots     []plot.Figure
	downloads map[lwa.Kind]bool
	alerts    []string
	opened    []string
	navigated []string
}

func newFakeView() *fakeView {
	return &fakeView{lists: map[lwa.Kind][]string{}, downloads: map[lwa.Kind]bool{}}
}

func (v *fakeView) SetFileList(k lwa.Kind, files []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lists[k] = files
}

func (v *fakeView) ShowMovie(p string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.movie, v.movieMsg = p, ""
}

func (v *fakeView) HideMovie(m string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.movie, v.movieMsg = "", m
}

func (v *fakeView) ShowSpectrogram(p string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spec, v.specMsg = p, ""
}

func (v *fakeView) HideSpectrogram(m string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spec, v.specMsg = "", m
}

func (v *fakeView) SetMovieContainerVisible(b bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = &b
}

func (v *fakeView) RenderPlot(f plot.Figure) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.plots = append(v.plots, f)
}

func (v *fakeView) SetDownloadEnabled(k lwa.Kind, e bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.downloads[k] = e
}

func (v *fakeView) Alert(m string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.alerts = append(v.alerts, m)
}

func (v *fakeView) Open(u string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.opened = append(v.opened, u)
}

func (v *fakeView) Navigate(u string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.navigated = append(v.navigated, u)
}

// fakeService answers every endpoint; fields may be swapped per test.
type fakeService struct {
	mu          sync.Mutex
	queries     func(form map[string]string) (int, any)
	preview     func(start string) any
	starts      []string
	bundleForms []map[string]string
	bundle      func(kind string) (int, string)
	movie       func(files []string) (int, any)
	// gate, when set, runs before the preview and plot answers are written.
	gate func(endpoint, start string)
}

func formOf(r *nethttp.Request) map[string]string {
	_ = r.ParseForm()
	out := map[string]string{}
	for k := range r.PostForm {
		out[k] = r.PostForm.Get(k)
	}
	return out
}

func writeJSON(w nethttp.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *fakeService) handler(prefix string) nethttp.Handler {
	mux := nethttp.NewServeMux()
	mux.HandleFunc(prefix+PathQuery, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		code, body := s.queries(formOf(r))
		writeJSON(w, code, body)
	})
	mux.HandleFunc(prefix+PathSpecMovie, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := formOf(r)["start"]
		s.mu.Lock()
		s.starts = append(s.starts, start)
		s.mu.Unlock()
		if s.gate != nil {
			s.gate(PathSpecMovie, start)
		}
		var body any = map[string]any{}
		if s.preview != nil {
			body = s.preview(start)
		}
		writeJSON(w, 200, body)
	})
	mux.HandleFunc(prefix+PathPlot, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		f := formOf(r)
		if s.gate != nil {
			s.gate(PathPlot, f["start"])
		}
		fig := plot.Figure{Layout: plot.Layout{Title: plot.Title{Text: f["start"]}}}
		raw, _ := json.Marshal(fig)
		writeJSON(w, 200, map[string]string{"plot": string(raw)})
	})
	mux.HandleFunc(prefix+PathGenerateBundle, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		f := formOf(r)
		s.mu.Lock()
		s.bundleForms = append(s.bundleForms, f)
		s.mu.Unlock()
		kind := strings.TrimPrefix(r.URL.Path, prefix+PathGenerateBundle)
		code, text := 200, kind+"_20250410_abcd1234.zip"
		if s.bundle != nil {
			code, text = s.bundle(kind)
		}
		if code != 200 {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(code)
			_, _ = w.Write([]byte(text))
			return
		}
		writeJSON(w, 200, map[string]string{"archive_name": text})
	})
	mux.HandleFunc(prefix+PathGenerateMovie, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var files []string
		_ = json.Unmarshal([]byte(formOf(r)["selected_files"]), &files)
		code, body := 200, any(map[string]string{"movie_url": "/static/movies/html/x.html"})
		if s.movie != nil {
			code, body = s.movie(files)
		}
		writeJSON(w, code, body)
	})
	return mux
}

func staticLists(lists map[string][]string) func(map[string]string) (int, any) {
	return func(map[string]string) (int, any) { return 200, lists }
}

func setup(t *testing.T, svc *fakeService, mutate func(*Options)) (*Controller, *fakeView) {
	t.Helper()
	srv := httptest.NewServer(svc.handler(""))
	t.Cleanup(srv.Close)
	opts := DefaultOptions(srv.URL)
	opts.HTTPClient = srv.Client()
	opts.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(&opts)
	}
	view := newFakeView()
	return New(view, opts), view
}

func TestRunQuery_AppliesListsInOrder(t *testing.T) {
	svc := &fakeService{queries: staticLists(map[string][]string{
		"spec_fits": {"a.fits", "b.fits"}, "slow_lev1": {}, "slow_lev15": {},
	})}
	c, view := setup(t, svc, nil)

	out, err := c.RunQuery(context.Background(), Form{Start: "2024-03-10T00:00:00", End: "2024-03-11T00:00:00"})
	require.NoError(t, err)
	assert.True(t, out.Applied)

	assert.Equal(t, []string{"a.fits", "b.fits"}, view.lists[lwa.KindSpecFITS])
	assert.Empty(t, view.lists[lwa.KindSlowLev1])
	assert.Empty(t, view.lists[lwa.KindSlowLev15])
	require.Len(t, view.plots, 1)
	assert.Equal(t, "2024-03-10T00:00:00", view.plots[0].Layout.Title.Text)
}

func TestRunQuery_PreviewUsesQueryStartAtNoon(t *testing.T) {
	svc := &fakeService{queries: staticLists(map[string][]string{})}
	c, _ := setup(t, svc, nil)

	_, err := c.RunQuery(context.Background(), Form{Start: "2024-03-10T05:30:00", End: "2024-03-12T00:00:00"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-10T12:00:00"}, svc.starts)
	assert.Equal(t, 0, c.Offset())
}

func TestRunQuery_LatestWins(t *testing.T) {
	release := make(chan struct{})
	first := make(chan struct{})
	svc := &fakeService{queries: func(f map[string]string) (int, any) {
		if f["start"] == "2024-01-01T00:00:00" {
			close(first)
			<-release
			return 200, map[string][]string{"spec_fits": {"old.fits"}}
		}
		return 200, map[string][]string{"spec_fits": {"new.fits"}}
	}}
	c, view := setup(t, svc, nil)

	var wg sync.WaitGroup
	var oldOut QueryOutcome
	wg.Add(1)
	go func() {
		defer wg.Done()
		oldOut, _ = c.RunQuery(context.Background(), Form{Start: "2024-01-01T00:00:00", End: "2024-01-02T00:00:00"})
	}()
	<-first

	newOut, err := c.RunQuery(context.Background(), Form{Start: "2024-02-01T00:00:00", End: "2024-02-02T00:00:00"})
	require.NoError(t, err)
	close(release)
	wg.Wait()

	assert.True(t, newOut.Applied)
	assert.False(t, oldOut.Applied)
	assert.Equal(t, []string{"new.fits"}, view.lists[lwa.KindSpecFITS])
	require.Len(t, view.plots, 1)
	assert.Equal(t, "2024-02-01T00:00:00", view.plots[0].Layout.Title.Text)
}

func TestRunQuery_LatePlotAndPreviewOfAppliedQueryAreDropped(t *testing.T) {
	const oldStart = "2024-01-01T00:00:00"
	release := make(chan struct{})
	arrived := make(chan string, 2)
	svc := &fakeService{
		queries: func(f map[string]string) (int, any) {
			return 200, map[string][]string{"spec_fits": {f["start"] + ".fits"}}
		},
		preview: func(start string) any {
			return map[string]string{"movie_path": "/movies/" + start + ".mp4", "spec_png_path": "/spec/" + start + ".png"}
		},
		gate: func(endpoint, start string) {
			if strings.HasPrefix(start, "2024-01-01") {
				arrived <- endpoint
				<-release
			}
		},
	}
	c, view := setup(t, svc, nil)
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	var wg sync.WaitGroup
	var oldOut QueryOutcome
	var oldErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		oldOut, oldErr = c.RunQuery(context.Background(), Form{Start: oldStart, End: "2024-01-02T00:00:00"})
	}()
	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case ep := <-arrived:
			got[ep] = true
		case <-time.After(5 * time.Second):
			t.Fatal("first query never requested its preview and plot")
		}
	}

	newOut, err := c.RunQuery(context.Background(), Form{Start: "2024-02-01T00:00:00", End: "2024-02-02T00:00:00"})
	require.NoError(t, err)
	unblock()
	wg.Wait()

	require.NoError(t, oldErr)
	assert.True(t, oldOut.Applied)
	assert.True(t, newOut.Applied)
	assert.Equal(t, []string{"2024-02-01T00:00:00.fits"}, view.lists[lwa.KindSpecFITS])
	require.Len(t, view.plots, 1)
	assert.Equal(t, "2024-02-01T00:00:00", view.plots[0].Layout.Title.Text)
	assert.Equal(t, "/movies/2024-02-01T12:00:00.mp4", view.movie)
	assert.Equal(t, "/spec/2024-02-01T12:00:00.png", view.spec)
	assert.ElementsMatch(t, []string{"2024-01-01T12:00:00", "2024-02-01T12:00:00"}, svc.starts)
}

func TestRunQuery_WithoutGuardLastArrivalWins(t *testing.T) {
	release := make(chan struct{})
	first := make(chan struct{})
	svc := &fakeService{queries: func(f map[string]string) (int, any) {
		if f["start"] == "2024-01-01T00:00:00" {
			close(first)
			<-release
			return 200, map[string][]string{"spec_fits": {"old.fits"}}
		}
		return 200, map[string][]string{"spec_fits": {"new.fits"}}
	}}
	c, view := setup(t, svc, func(o *Options) { o.GuardStale = false })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.RunQuery(context.Background(), Form{Start: "2024-01-01T00:00:00", End: "2024-01-02T00:00:00"})
	}()
	<-first
	_, err := c.RunQuery(context.Background(), Form{Start: "2024-02-01T00:00:00", End: "2024-02-02T00:00:00"})
	require.NoError(t, err)
	close(release)
	<-done

	assert.Equal(t, []string{"old.fits"}, view.lists[lwa.KindSpecFITS])
}

func TestRunQuery_CadenceFlag(t *testing.T) {
	var got []map[string]string
	var mu sync.Mutex
	svc := &fakeService{queries: func(f map[string]string) (int, any) {
		mu.Lock()
		got = append(got, f)
		mu.Unlock()
		return 200, map[string][]string{}
	}}
	form := Form{Start: "2024-03-10T00:00:00", End: "2024-03-11T00:00:00", Cadence: "60"}

	c, _ := setup(t, svc, nil)
	_, err := c.RunQuery(context.Background(), form)
	require.NoError(t, err)

	c2, _ := setup(t, svc, func(o *Options) { o.SendCadence = false })
	_, err = c2.RunQuery(context.Background(), form)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "60", got[0]["cadence"])
	_, present := got[1]["cadence"]
	assert.False(t, present)
}

func TestRunQuery_ServerError(t *testing.T) {
	svc := &fakeService{queries: func(map[string]string) (int, any) {
		return 400, map[string]string{"error": "Invalid date format"}
	}}
	c, view := setup(t, svc, nil)

	out, err := c.RunQuery(context.Background(), Form{Start: "x", End: "y"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 400, se.StatusCode)
	assert.False(t, out.Applied)
	assert.Empty(t, view.lists)
}

func TestPreview_EmptyAnswerShowsMessages(t *testing.T) {
	svc := &fakeService{queries: staticLists(map[string][]string{})}
	c, view := setup(t, svc, nil)

	_, err := c.RefreshPreview(context.Background(), "2024-03-10T00:00:00", 0)
	require.NoError(t, err)
	assert.Empty(t, view.movie)
	assert.Empty(t, view.spec)
	assert.Equal(t, DefaultMovieMessage, view.movieMsg)
	assert.Equal(t, DefaultSpecMessage, view.specMsg)
	require.NotNil(t, view.visible)
	assert.False(t, *view.visible)
}

func TestPreview_AlwaysShowContainer(t *testing.T) {
	svc := &fakeService{queries: staticLists(map[string][]string{})}
	c, view := setup(t, svc, func(o *Options) { o.AlwaysShowMovieContainer = true })

	_, err := c.RefreshPreview(context.Background(), "2024-03-10T00:00:00", 0)
	require.NoError(t, err)
	require.NotNil(t, view.visible)
	assert.True(t, *view.visible)
	assert.Equal(t, DefaultMovieMessage, view.movieMsg)
}

func TestPreview_IndependentArtifacts(t *testing.T) {
	svc := &fakeService{preview: func(string) any {
		return map[string]string{"spec_png_path": "https://x/daily/20240310.png", "movie_message": "no movie today"}
	}}
	c, view := setup(t, svc, nil)

	_, err := c.RefreshPreview(context.Background(), "2024-03-10T00:00:00", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://x/daily/20240310.png", view.spec)
	assert.Empty(t, view.movie)
	assert.Equal(t, "no movie today", view.movieMsg)
	assert.True(t, *view.visible)
}

func TestAdjustOffset(t *testing.T) {
	svc := &fakeService{}
	c, _ := setup(t, svc, nil)
	c.SetForm(Form{Start: "2024-03-10T00:00:00", End: "2024-03-11T00:00:00"})

	next, err := c.AdjustOffset(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-11T12:00:00", next)

	back, err := c.AdjustOffset(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10T12:00:00", back)

	prev, err := c.AdjustOffset(context.Background(), -1)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09T12:00:00", prev)
	assert.Equal(t, -1, c.Offset())

	// the base is whatever the start field holds now
	c.SetForm(Form{Start: "2025-01-01T00:00:00"})
	moved, err := c.AdjustOffset(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "2024-12-31T12:00:00", moved)

	assert.Equal(t, []string{"2024-03-11T12:00:00", "2024-03-10T12:00:00", "2024-03-09T12:00:00", "2024-12-31T12:00:00"}, svc.starts)
}

func TestGenerateBundle_EmptySelectionMeansAll(t *testing.T) {
	svc := &fakeService{queries: staticLists(map[string][]string{"slow_lev1": {"a.hdf", "b.hdf"}})}
	c, view := setup(t, svc, nil)
	_, err := c.RunQuery(context.Background(), Form{Start: "2024-03-10T00:00:00", End: "2024-03-11T00:00:00"})
	require.NoError(t, err)

	_, err = c.GenerateBundle(context.Background(), lwa.KindSlowLev1)
	require.NoError(t, err)
	c.Select(lwa.KindSlowLev1, []string{"a.hdf", "b.hdf"})
	name, err := c.GenerateBundle(context.Background(), lwa.KindSlowLev1)
	require.NoError(t, err)

	require.Len(t, svc.bundleForms, 2)
	assert.Equal(t, svc.bundleForms[0], svc.bundleForms[1])
	assert.Equal(t, `["a.hdf","b.hdf"]`, svc.bundleForms[0]["selected_files"])
	assert.Equal(t, "slow_lev1_20250410_abcd1234.zip", name)
	assert.True(t, view.downloads[lwa.KindSlowLev1])

	u, err := c.Download(lwa.KindSlowLev1)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, "/download_ready_bundle/slow_lev1_20250410_abcd1234.zip"))
	assert.Equal(t, []string{u}, view.navigated)
}

func TestGenerateBundle_FailureAlertsServerText(t *testing.T) {
	svc := &fakeService{bundle: func(kind string) (int, string) { return 400, "No files selected for " + kind }}
	c, view := setup(t, svc, nil)

	_, err := c.GenerateBundle(context.Background(), lwa.KindSpecFITS)
	require.Error(t, err)
	assert.Equal(t, []string{"No files selected for spec_fits"}, view.alerts)
	assert.False(t, view.downloads[lwa.KindSpecFITS])
	_, err = c.Download(lwa.KindSpecFITS)
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestGenerateBundle_NetworkFailureAlertsGeneric(t *testing.T) {
	view := newFakeView()
	opts := DefaultOptions("http://127.0.0.1:1")
	opts.Timeout = time.Second
	c := New(view, opts)

	_, err := c.GenerateBundle(context.Background(), lwa.KindSlowLev15)
	require.Error(t, err)
	assert.Equal(t, []string{"Failed to generate slow_lev15 bundle."}, view.alerts)
}

func TestRunQuery_InvalidatesArchives(t *testing.T) {
	svc := &fakeService{queries: staticLists(map[string][]string{"spec_fits": {"a.fits"}})}
	c, view := setup(t, svc, nil)
	_, err := c.GenerateBundle(context.Background(), lwa.KindSpecFITS)
	require.NoError(t, err)
	require.True(t, view.downloads[lwa.KindSpecFITS])

	_, err = c.RunQuery(context.Background(), Form{Start: "2024-03-10T00:00:00", End: "2024-03-11T00:00:00"})
	require.NoError(t, err)
	assert.False(t, view.downloads[lwa.KindSpecFITS])
	assert.Empty(t, c.Archive(lwa.KindSpecFITS))
}

func TestGenerateMovieFromSelection(t *testing.T) {
	var sent []string
	svc := &fakeService{
		queries: staticLists(map[string][]string{"slow_lev15": {"x.hdf", "y.hdf"}}),
		movie: func(files []string) (int, any) {
			sent = files
			return 200, map[string]string{"movie_url": "/static/movies/html/abc.html"}
		},
	}
	c, view := setup(t, svc, nil)
	_, err := c.RunQuery(context.Background(), Form{Start: "2024-03-10T00:00:00", End: "2024-03-11T00:00:00"})
	require.NoError(t, err)

	c.Select(lwa.KindSlowLev15, []string{"y.hdf"})
	u, err := c.GenerateMovieFromSelection(context.Background(), lwa.KindSlowLev15)
	require.NoError(t, err)
	assert.Equal(t, "/static/movies/html/abc.html", u)
	assert.Equal(t, []string{"y.hdf"}, sent)
	assert.Equal(t, []string{u}, view.opened)

	_, err = c.GenerateMovieFromSelection(context.Background(), lwa.KindSpecFITS)
	assert.ErrorIs(t, err, ErrNotMovieKind)
}

func TestGenerateMovieFromSelection_Failures(t *testing.T) {
	svc := &fakeService{movie: func([]string) (int, any) { return 200, map[string]string{} }}
	c, view := setup(t, svc, nil)
	_, err := c.GenerateMovieFromSelection(context.Background(), lwa.KindSlowLev1)
	require.Error(t, err)

	svc.movie = func([]string) (int, any) { return 404, map[string]string{"error": "no frames"} }
	_, err = c.GenerateMovieFromSelection(context.Background(), lwa.KindSlowLev1)
	require.Error(t, err)

	assert.Equal(t, []string{MovieURLMissing, MovieFailed}, view.alerts)
	assert.Empty(t, view.opened)
}

func TestClient_Prefix(t *testing.T) {
	svc := &fakeService{queries: staticLists(map[string][]string{"slow_lev1": {"p.hdf"}})}
	srv := httptest.NewServer(svc.handler("/lwadata-query"))
	defer srv.Close()

	cl := NewClient(srv.URL, "lwadata-query/", srv.Client(), time.Second)
	res, err := cl.Query(context.Background(), Form{Start: "a", End: "b"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"p.hdf"}, res.SlowLev1)
	assert.Equal(t, fmt.Sprintf("%s/lwadata-query/download_ready_bundle/a.zip", srv.URL), cl.DownloadURL("a.zip"))
}
