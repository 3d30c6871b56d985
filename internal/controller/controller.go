// Package controller drives the query page: it turns a time range into
// service calls and applies the answers to a View, discarding answers that
// belong to a superseded query.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"sync"
	"time"

	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
	"lwa-query-web/internal/movie"
	"lwa-query-web/internal/plot"
)

// Default texts shown when the preview lookup returns no artifact and no message.
const (
	DefaultMovieMessage = "The image movie does not exist for the selected day."
	DefaultSpecMessage  = "The spectrogram does not exist for the selected day."
	MovieURLMissing     = "Movie URL not returned."
	MovieFailed         = "Failed to generate movie HTML."
)

var (
	ErrNoArchive    = errors.New("no archive generated for this list")
	ErrNotMovieKind = errors.New("movies can only be built from image files")
)

// View is the page surface the controller writes to. Calls are serialized by
// the controller; implementations must not call back into it.
type View interface {
	SetFileList(kind lwa.Kind, files []string)
	ShowMovie(path string)
	HideMovie(message string)
	ShowSpectrogram(path string)
	HideSpectrogram(message string)
	SetMovieContainerVisible(visible bool)
	RenderPlot(fig plot.Figure)
	SetDownloadEnabled(kind lwa.Kind, enabled bool)
	Alert(message string)
	Open(url string)
	Navigate(url string)
}

// Options configures a Controller.
type Options struct {
	BaseURL string
	// Prefix is the mount point of the page, "" or e.g. "/lwadata-query".
	Prefix string
	// AlwaysShowMovieContainer shows the preview box even when neither the
	// movie nor the spectrogram exists.
	AlwaysShowMovieContainer bool
	// GuardStale drops answers of queries that are no longer the latest.
	GuardStale bool
	// SendCadence includes the cadence field in range requests.
	SendCadence bool
	HTTPClient  *nethttp.Client
	Timeout     time.Duration
	Logger      *slog.Logger
}

// DefaultOptions enables the staleness guard and cadence.
func DefaultOptions(baseURL string) Options {
	return Options{
		BaseURL:     baseURL,
		GuardStale:  true,
		SendCadence: true,
		Timeout:     2 * time.Minute,
	}
}

// QueryOutcome reports what happened to one RunQuery call.
type QueryOutcome struct {
	Version uint64
	Applied bool
}

// Controller owns the page state for one page instance.
type Controller struct {
	opts   Options
	client *Client
	view   View
	log    *slog.Logger

	mu        sync.Mutex
	form      Form
	version   uint64
	offset    int
	lists     map[lwa.Kind][]string
	selection map[lwa.Kind][]string
	archives  map[lwa.Kind]string
}

// New returns a controller with the default range and every download disabled.
func New(view View, opts Options) *Controller {
	start, end := lwa.DefaultRange(time.Now())
	c := &Controller{
		opts:      opts,
		client:    NewClient(opts.BaseURL, opts.Prefix, opts.HTTPClient, opts.Timeout),
		view:      view,
		log:       logging.OrDefault(opts.Logger),
		form:      Form{Start: start, End: end},
		lists:     make(map[lwa.Kind][]string),
		selection: make(map[lwa.Kind][]string),
		archives:  make(map[lwa.Kind]string),
	}
	for _, k := range lwa.Kinds() {
		view.SetDownloadEnabled(k, false)
	}
	return c
}

// Client exposes the underlying service client.
func (c *Controller) Client() *Client { return c.client }

// Form returns the current range fields.
func (c *Controller) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

// SetForm records edits to the range fields without querying.
func (c *Controller) SetForm(f Form) {
	c.mu.Lock()
	c.form = f
	c.mu.Unlock()
}

// Offset is the current preview day offset.
func (c *Controller) Offset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Files returns the list currently shown for kind.
func (c *Controller) Files(kind lwa.Kind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lists[kind]...)
}

// RunQuery submits form. When the answer arrives after a newer query was
// issued it is dropped. An applied answer replaces the lists, resets the
// selections, archives and offset, then refreshes preview and plot
// concurrently under the same version.
func (c *Controller) RunQuery(ctx context.Context, form Form) (QueryOutcome, error) {
	c.mu.Lock()
	c.form = form
	c.version++
	thisQuery := c.version
	c.mu.Unlock()

	res, err := c.client.Query(ctx, form, c.opts.SendCadence)

	c.mu.Lock()
	if c.stale(thisQuery) {
		c.mu.Unlock()
		c.log.Debug("discarding stale query answer", "version", thisQuery)
		return QueryOutcome{Version: thisQuery}, nil
	}
	if err != nil {
		c.mu.Unlock()
		return QueryOutcome{Version: thisQuery}, err
	}
	for _, k := range lwa.Kinds() {
		files := append([]string(nil), res.Files(k)...)
		c.lists[k] = files
		c.view.SetFileList(k, files)
		delete(c.selection, k)
		delete(c.archives, k)
		c.view.SetDownloadEnabled(k, false)
	}
	c.offset = 0
	c.mu.Unlock()

	var previewErr, plotErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, previewErr = c.refreshPreview(ctx, form.Start, 0, &thisQuery)
	}()
	go func() {
		defer wg.Done()
		plotErr = c.refreshPlot(ctx, form, thisQuery)
	}()
	wg.Wait()

	return QueryOutcome{Version: thisQuery, Applied: true}, errors.Join(previewErr, plotErr)
}

// RefreshPreview looks up the preview for base's day moved by offset days
// and returns the shifted start that was requested.
func (c *Controller) RefreshPreview(ctx context.Context, base string, offset int) (string, error) {
	return c.refreshPreview(ctx, base, offset, nil)
}

// AdjustOffset moves the preview day by delta relative to the start field as
// it is now.
func (c *Controller) AdjustOffset(ctx context.Context, delta int) (string, error) {
	c.mu.Lock()
	c.offset += delta
	offset, base := c.offset, c.form.Start
	c.mu.Unlock()
	return c.refreshPreview(ctx, base, offset, nil)
}

func (c *Controller) refreshPreview(ctx context.Context, base string, offset int, guard *uint64) (string, error) {
	shifted, err := lwa.ShiftedStart(base, offset)
	if err != nil {
		return "", err
	}
	p, err := c.client.SpecMovie(ctx, shifted)

	c.mu.Lock()
	defer c.mu.Unlock()
	if guard != nil && c.stale(*guard) {
		return shifted, nil
	}
	if err != nil {
		return shifted, err
	}
	c.applyPreview(p)
	return shifted, nil
}

func (c *Controller) applyPreview(p movie.Preview) {
	if p.MoviePath != "" {
		c.view.ShowMovie(p.MoviePath)
	} else {
		c.view.HideMovie(orDefault(p.MovieMessage, DefaultMovieMessage))
	}
	if p.SpecPNGPath != "" {
		c.view.ShowSpectrogram(p.SpecPNGPath)
	} else {
		c.view.HideSpectrogram(orDefault(p.SpecMessage, DefaultSpecMessage))
	}
	c.view.SetMovieContainerVisible(c.opts.AlwaysShowMovieContainer || p.MoviePath != "" || p.SpecPNGPath != "")
}

func (c *Controller) refreshPlot(ctx context.Context, form Form, thisQuery uint64) error {
	fig, err := c.client.Plot(ctx, form, c.opts.SendCadence)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(thisQuery) {
		return nil
	}
	if err != nil {
		return err
	}
	c.view.RenderPlot(fig)
	return nil
}

// stale must be called with mu held.
func (c *Controller) stale(v uint64) bool {
	return c.opts.GuardStale && v != c.version
}

// Select records the highlighted files of a list.
func (c *Controller) Select(kind lwa.Kind, files []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(files) == 0 {
		delete(c.selection, kind)
		return
	}
	c.selection[kind] = append([]string(nil), files...)
}

// Selection returns the highlighted files of a list, or the whole list when
// nothing is highlighted.
func (c *Controller) Selection(kind lwa.Kind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectionLocked(kind)
}

func (c *Controller) selectionLocked(kind lwa.Kind) []string {
	if sel := c.selection[kind]; len(sel) > 0 {
		return append([]string(nil), sel...)
	}
	return append([]string(nil), c.lists[kind]...)
}

// GenerateBundle packs the selection of kind on the server. On success the
// archive name is kept for Download and the download control is enabled;
// on failure the server's text is alerted and the control stays disabled.
func (c *Controller) GenerateBundle(ctx context.Context, kind lwa.Kind) (string, error) {
	c.mu.Lock()
	delete(c.archives, kind)
	c.view.SetDownloadEnabled(kind, false)
	files := c.selectionLocked(kind)
	form := c.form
	thisQuery := c.version
	c.mu.Unlock()

	name, err := c.client.GenerateBundle(ctx, kind, form, c.opts.SendCadence, files)
	if err == nil && name == "" {
		err = fmt.Errorf("generate_bundle: empty archive name")
	}
	if err != nil {
		c.log.Warn("bundle generation failed", "kind", kind, "files", len(files), "err", err)
		c.alert(bundleFailureText(kind, err))
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(thisQuery) {
		return name, nil
	}
	c.archives[kind] = name
	c.view.SetDownloadEnabled(kind, true)
	return name, nil
}

// Archive returns the ready archive name of kind, if any.
func (c *Controller) Archive(kind lwa.Kind) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.archives[kind]
}

// Download navigates to the ready archive of kind.
func (c *Controller) Download(kind lwa.Kind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := c.archives[kind]
	if name == "" {
		return "", ErrNoArchive
	}
	u := c.client.DownloadURL(name)
	c.view.Navigate(u)
	return u, nil
}

// GenerateMovieFromSelection builds a frame-player page from the selection of
// an image list and opens it.
func (c *Controller) GenerateMovieFromSelection(ctx context.Context, kind lwa.Kind) (string, error) {
	if !kind.SupportsMovie() {
		return "", ErrNotMovieKind
	}
	files := c.Selection(kind)

	u, err := c.client.GenerateMovie(ctx, files)
	if err != nil {
		c.log.Warn("movie generation failed", "kind", kind, "files", len(files), "err", err)
		c.alert(MovieFailed)
		return "", err
	}
	if u == "" {
		c.alert(MovieURLMissing)
		return "", errors.New(MovieURLMissing)
	}
	c.mu.Lock()
	c.view.Open(u)
	c.mu.Unlock()
	return u, nil
}

func (c *Controller) alert(msg string) {
	c.mu.Lock()
	c.view.Alert(msg)
	c.mu.Unlock()
}

func bundleFailureText(kind lwa.Kind, err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Body != "" {
		return se.Body
	}
	return fmt.Sprintf("Failed to generate %s bundle.", kind)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
