// Package jenkins is a thin read-only client over the Jenkins JSON API.
package jenkins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rhoci/rhoci/internal/cache"
	"github.com/rhoci/rhoci/internal/metrics"
	"github.com/rhoci/rhoci/internal/models"
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	User              string
	Password          string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	BuildsPerJob      int
	MaxConsoleBytes   int64
	Cache             cache.Provider
	JobsTTL           time.Duration
}

// Client wraps the Jenkins endpoints used for ingestion. It holds no per-build state.
type Client struct {
	baseURL         string
	user            string
	password        string
	buildsPerJob    int
	maxConsoleBytes int64
	httpClient      *http.Client
	limiter         *rate.Limiter
	cache           cache.Provider
	jobsTTL         time.Duration
}

// NewClient constructs a client targeting the configured Jenkins instance.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.BuildsPerJob <= 0 {
		opts.BuildsPerJob = 10
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopProvider{}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		user:            opts.User,
		password:        opts.Password,
		buildsPerJob:    opts.BuildsPerJob,
		maxConsoleBytes: opts.MaxConsoleBytes,
		httpClient:      &http.Client{Timeout: opts.Timeout},
		limiter:         rate.NewLimiter(limit, opts.Burst),
		cache:           opts.Cache,
		jobsTTL:         opts.JobsTTL,
	}
}

// BaseURL returns the normalised Jenkins base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListJobs returns the top-level jobs of the Jenkins instance.
func (c *Client) ListJobs(ctx context.Context) ([]models.Job, error) {
	cacheKey := "jenkins:jobs:" + c.baseURL
	if c.jobsTTL > 0 {
		if data, err := c.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.Job
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var response struct {
		Jobs []struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"jobs"`
	}
	endpoint := c.resolve("/api/json") + "?tree=" + url.QueryEscape("jobs[name,url]")
	if err := c.getJSON(ctx, "list jobs", endpoint, &response); err != nil {
		return nil, err
	}

	jobs := make([]models.Job, 0, len(response.Jobs))
	for _, j := range response.Jobs {
		if strings.TrimSpace(j.Name) == "" {
			continue
		}
		jobs = append(jobs, models.Job{Name: j.Name, URL: j.URL})
	}

	if c.jobsTTL > 0 && len(jobs) > 0 {
		if payload, err := json.Marshal(jobs); err == nil {
			_ = c.cache.Set(ctx, cacheKey, payload, c.jobsTTL)
		}
	}
	return jobs, nil
}

// ListBuilds returns the most recent builds of a job, newest first.
func (c *Client) ListBuilds(ctx context.Context, job string) ([]BuildRef, error) {
	var response struct {
		Builds []struct {
			Number int    `json:"number"`
			URL    string `json:"url"`
		} `json:"builds"`
	}
	tree := fmt.Sprintf("builds[number,url]{0,%d}", c.buildsPerJob)
	endpoint := c.resolve(jobPath(job)+"/api/json") + "?tree=" + url.QueryEscape(tree)
	if err := c.getJSON(ctx, "list builds", endpoint, &response); err != nil {
		return nil, err
	}

	refs := make([]BuildRef, 0, len(response.Builds))
	for _, b := range response.Builds {
		if b.Number <= 0 {
			continue
		}
		refs = append(refs, BuildRef{Job: job, Number: b.Number, URL: b.URL})
	}
	return refs, nil
}

// FetchBuild returns the build metadata.
func (c *Client) FetchBuild(ctx context.Context, job string, number int) (RawBuild, error) {
	var raw RawBuild
	endpoint := c.resolve(buildPath(job, number) + "/api/json")
	if err := c.getJSON(ctx, "fetch build", endpoint, &raw); err != nil {
		return RawBuild{}, err
	}
	raw.Job = job
	if raw.Number == 0 {
		raw.Number = number
	}
	return raw, nil
}

// FetchConsole returns the console log. When the log exceeds the configured maximum only the
// tail is kept, starting at a line boundary.
func (c *Client) FetchConsole(ctx context.Context, job string, number int) (string, error) {
	endpoint := c.resolve(buildPath(job, number) + "/consoleText")
	resp, err := c.get(ctx, "fetch console", endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := readTail(resp.Body, c.maxConsoleBytes)
	if err != nil {
		return "", &TransientFetchError{Op: "fetch console", URL: endpoint, Err: err}
	}
	return text, nil
}

// FetchTestReport returns the junit report, or a NotFoundError when none is published.
func (c *Client) FetchTestReport(ctx context.Context, job string, number int) (*RawTestReport, error) {
	var report RawTestReport
	endpoint := c.resolve(buildPath(job, number) + "/testReport/api/json")
	if err := c.getJSON(ctx, "fetch test report", endpoint, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ConsoleURL is the browsable console location of a build.
func (c *Client) ConsoleURL(job string, number int) string {
	return c.resolve(buildPath(job, number) + "/console")
}

// ReportURL is the browsable test report location of a build.
func (c *Client) ReportURL(job string, number int) string {
	return c.resolve(buildPath(job, number) + "/testReport")
}

func (c *Client) resolve(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	u.RawPath = ""
	return u.String()
}

// jobPath maps "folder/name" onto Jenkins' nested /job/folder/job/name layout.
func jobPath(job string) string {
	var b strings.Builder
	for _, segment := range strings.Split(strings.Trim(job, "/"), "/") {
		if segment == "" {
			continue
		}
		b.WriteString("/job/")
		b.WriteString(segment)
	}
	return b.String()
}

func buildPath(job string, number int) string {
	return jobPath(job) + "/" + strconv.Itoa(number)
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	resp, err := c.get(ctx, op, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransientFetchError{Op: op, URL: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, endpoint string) (*http.Response, error) {
	if endpoint == "" {
		return nil, &TransientFetchError{Op: op, Err: fmt.Errorf("jenkins base URL not configured")}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransientFetchError{Op: op, URL: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransientFetchError{Op: op, URL: endpoint, Err: err}
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	req.Header.Set("Accept", "application/json, text/plain")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveJenkinsRequest(op, time.Since(start), metrics.OutcomeError)
		return nil, &TransientFetchError{Op: op, URL: endpoint, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		metrics.ObserveJenkinsRequest(op, time.Since(start), metrics.OutcomeSuccess)
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		drain(resp)
		metrics.ObserveJenkinsRequest(op, time.Since(start), metrics.OutcomeNotFound)
		return nil, &NotFoundError{Op: op, URL: endpoint}
	default:
		drain(resp)
		metrics.ObserveJenkinsRequest(op, time.Since(start), metrics.OutcomeError)
		return nil, &TransientFetchError{Op: op, URL: endpoint, StatusCode: resp.StatusCode}
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

const readChunk = 32 << 10

func readTail(r io.Reader, max int64) (string, error) {
	if max <= 0 {
		data, err := io.ReadAll(r)
		return string(data), err
	}

	limit := int(max)
	buf := make([]byte, 0, readChunk)
	chunk := make([]byte, readChunk)
	truncated := false
	for {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if len(buf) > 2*limit {
			buf = append(buf[:0], buf[len(buf)-limit:]...)
			truncated = true
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	if len(buf) > limit {
		buf = buf[len(buf)-limit:]
		truncated = true
	}
	if truncated {
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			buf = buf[i+1:]
		}
	}
	return string(buf), nil
}
