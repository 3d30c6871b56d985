package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"lwa-query-web/internal/lwa"
	"lwa-query-web/internal/movie"
	"lwa-query-web/internal/plot"
)

// Endpoint paths below the deployment prefix.
const (
	PathQuery          = "/api/flare/query"
	PathSpecMovie      = "/api/flare/spec_movie"
	PathPlot           = "/plot"
	PathGenerateBundle = "/generate_bundle/"
	PathDownloadBundle = "/download_ready_bundle/"
	PathGenerateMovie  = "/generate_html_movie"
)

// StatusError is a non-2xx answer. Body holds the server's text as sent.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
}

// Form is the time range the page submits.
type Form struct {
	Start   string
	End     string
	Cadence string
}

func (f Form) values(withCadence bool) url.Values {
	v := url.Values{}
	v.Set("start", f.Start)
	v.Set("end", f.End)
	if withCadence && strings.TrimSpace(f.Cadence) != "" {
		v.Set("cadence", f.Cadence)
	}
	return v
}

// QueryResult is the file-list answer of the query endpoint.
type QueryResult struct {
	SpecFITS  []string `json:"spec_fits"`
	SlowLev1  []string `json:"slow_lev1"`
	SlowLev15 []string `json:"slow_lev15"`
}

// Files returns the list of one kind.
func (q QueryResult) Files(k lwa.Kind) []string {
	switch k {
	case lwa.KindSpecFITS:
		return q.SpecFITS
	case lwa.KindSlowLev1:
		return q.SlowLev1
	case lwa.KindSlowLev15:
		return q.SlowLev15
	}
	return nil
}

// Client talks to the query service with form-encoded POSTs.
type Client struct {
	root    string
	http    *nethttp.Client
	timeout time.Duration
}

// NewClient builds a client for the service at baseURL mounted under prefix.
func NewClient(baseURL, prefix string, hc *nethttp.Client, timeout time.Duration) *Client {
	if hc == nil {
		hc = nethttp.DefaultClient
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Client{root: strings.TrimRight(baseURL, "/") + prefix, http: hc, timeout: timeout}
}

// URL resolves an endpoint path.
func (c *Client) URL(path string) string {
	return c.root + path
}

// DownloadURL is where a ready bundle is fetched from.
func (c *Client) DownloadURL(name string) string {
	return c.URL(PathDownloadBundle + url.PathEscape(name))
}

func (c *Client) Query(ctx context.Context, form Form, withCadence bool) (QueryResult, error) {
	var out QueryResult
	err := c.postJSON(ctx, "query", PathQuery, form.values(withCadence), &out)
	return out, err
}

func (c *Client) SpecMovie(ctx context.Context, start string) (movie.Preview, error) {
	var out movie.Preview
	err := c.postJSON(ctx, "spec_movie", PathSpecMovie, url.Values{"start": {start}}, &out)
	return out, err
}

// Plot fetches the availability figure. The server sends it as a JSON
// document nested in a string field.
func (c *Client) Plot(ctx context.Context, form Form, withCadence bool) (plot.Figure, error) {
	var resp struct {
		Plot string `json:"plot"`
	}
	if err := c.postJSON(ctx, "plot", PathPlot, form.values(withCadence), &resp); err != nil {
		return plot.Figure{}, err
	}
	var fig plot.Figure
	if err := json.Unmarshal([]byte(resp.Plot), &fig); err != nil {
		return plot.Figure{}, fmt.Errorf("plot: decode figure: %w", err)
	}
	return fig, nil
}

// GenerateBundle asks the server to pack files and returns the archive name.
func (c *Client) GenerateBundle(ctx context.Context, kind lwa.Kind, form Form, withCadence bool, files []string) (string, error) {
	v := form.values(withCadence)
	sel, err := json.Marshal(nonNil(files))
	if err != nil {
		return "", err
	}
	v.Set("selected_files", string(sel))

	var out struct {
		ArchiveName string `json:"archive_name"`
	}
	if err := c.postJSON(ctx, "generate_bundle", PathGenerateBundle+url.PathEscape(string(kind)), v, &out); err != nil {
		return "", err
	}
	return out.ArchiveName, nil
}

// GenerateMovie asks for a frame-player page and returns its URL.
func (c *Client) GenerateMovie(ctx context.Context, files []string) (string, error) {
	sel, err := json.Marshal(nonNil(files))
	if err != nil {
		return "", err
	}
	var out struct {
		MovieURL string `json:"movie_url"`
	}
	if err := c.postJSON(ctx, "generate_html_movie", PathGenerateMovie, url.Values{"selected_files": {string(sel)}}, &out); err != nil {
		return "", err
	}
	return out.MovieURL, nil
}

// DownloadBundle streams a ready archive into w.
func (c *Client) DownloadBundle(ctx context.Context, name string, w io.Writer) (int64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, c.DownloadURL(name), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download_ready_bundle: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus("download_ready_bundle", resp); err != nil {
		return 0, err
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) postJSON(ctx context.Context, op, path string, form url.Values, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, c.URL(path), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func checkStatus(op string, resp *nethttp.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func nonNil(files []string) []string {
	if files == nil {
		return []string{}
	}
	return files
}
