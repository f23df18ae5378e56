package kcidb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kernelci/logspec/internal/cachemanager"
	"github.com/kernelci/logspec/internal/faults"
	"github.com/kernelci/logspec/internal/logging"
	"github.com/kernelci/logspec/internal/parser"
	"github.com/kernelci/logspec/internal/states"
)

// LogspecError is a fault as stored in an issue.
type LogspecError struct {
	Version string         `json:"version"`
	Parser  string         `json:"parser"`
	Error   map[string]any `json:"error"`
}

// Issue is a KCIDB issue.
type Issue struct {
	Origin     string         `json:"origin"`
	ID         string         `json:"id"`
	Version    int            `json:"version"`
	Comment    string         `json:"comment"`
	Misc       map[string]any `json:"misc"`
	BuildValid *bool          `json:"build_valid,omitempty"`
	TestStatus string         `json:"test_status,omitempty"`
}

// Incident is a KCIDB incident linking a result to an issue.
type Incident struct {
	ID           string `json:"id"`
	IssueID      string `json:"issue_id"`
	IssueVersion int    `json:"issue_version"`
	BuildID      string `json:"build_id,omitempty"`
	TestID       string `json:"test_id,omitempty"`
	Comment      string `json:"comment"`
	Origin       string `json:"origin"`
	Present      bool   `json:"present"`
}

// SchemaVersion is the KCIDB schema version of a submission.
type SchemaVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Submission is a KCIDB submission holding new issues and incidents.
type Submission struct {
	Version   SchemaVersion `json:"version"`
	Issues    []Issue       `json:"issues,omitempty"`
	Incidents []Incident    `json:"incidents,omitempty"`
}

const (
	origin          = "_"
	incidentComment = "test incident, automatically generated"
)

// ResultStore is the part of Store used by the generator.
type ResultStore interface {
	Results(ctx context.Context, ot ObjectType, dateFrom, dateUntil string) ([]Result, error)
	IssueVersions(ctx context.Context) (map[string]int, error)
}

// Options configures a Generator.
type Options struct {
	// DefsPath is the parser definitions file. Empty selects the built-in
	// definitions.
	DefsPath string
	// Concurrency bounds the number of logs processed at once.
	Concurrency int
	// CacheTTL is how long parsed logs stay cached across runs.
	CacheTTL time.Duration
	// Metrics receives generator metrics. Optional.
	Metrics *Metrics
}

// Generator turns failed results into issues and incidents.
type Generator struct {
	store   ResultStore
	fetcher LogFetcher
	cache   cachemanager.CacheManager[string, []LogspecError]
	opts    Options
}

// NewGenerator returns a generator reading from store and fetching logs
// with fetcher.
func NewGenerator(store ResultStore, fetcher LogFetcher, opts Options) *Generator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cachemanager.DefaultExpiration
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Generator{
		store:   store,
		fetcher: fetcher,
		cache:   cachemanager.NewInMemoryCacheManager[string, []LogspecError]("kcidb-logs", opts.CacheTTL, cachemanager.DefaultCleanupInterval),
		opts:    opts,
	}
}

// Run processes the results of type objectType in the date range. It
// returns nil when there is nothing to submit.
func (g *Generator) Run(ctx context.Context, objectType, dateFrom, dateUntil string) (*Submission, error) {
	started := time.Now()
	ot, err := LookupObjectType(objectType)
	if err != nil {
		return nil, err
	}
	if dateFrom == "" && dateUntil == "" {
		return nil, ErrNoDateRange
	}
	log := logging.With("run", uuid.NewString(), "type", ot.Name)

	start, err := states.LoadParser(ot.Parser, g.opts.DefsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load parser %s: %w", ot.Parser, err)
	}
	results, err := g.store.Results(ctx, ot, dateFrom, dateUntil)
	if err != nil {
		return nil, err
	}
	issueVersions, err := g.store.IssueVersions(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("processing results", "results", len(results), "known_issues", len(issueVersions))

	if err := g.processLogs(ctx, results, ot.Parser, start); err != nil {
		return nil, err
	}

	var (
		issues    []Issue
		incidents []Incident
	)
	for _, r := range results {
		errs, _ := g.cache.Get(ctx, r.LogURL)
		for _, e := range errs {
			sig, _ := e.Error["signature"].(string)
			if sig == "" {
				continue
			}
			issueID := "_:" + sig
			if _, ok := issueVersions[issueID]; !ok {
				issueVersions[issueID] = 0
				issues = append(issues, newIssue(e, ot))
			}
			incidents = append(incidents, newIncident(r.ID, issueID, ot, issueVersions[issueID]))
		}
	}

	g.opts.Metrics.recordRun(ot.Name, len(issues), len(incidents), time.Since(started))
	log.Info("run done", "issues", len(issues), "incidents", len(incidents), "duration", time.Since(started))
	if len(issues) == 0 && len(incidents) == 0 {
		return nil, nil
	}
	return &Submission{
		Version:   SchemaVersion{Major: 4, Minor: 3},
		Issues:    issues,
		Incidents: incidents,
	}, nil
}

// processLogs fetches and parses every log once. A log is claimed in the
// cache before it is fetched, so concurrent and later runs skip it.
func (g *Generator) processLogs(ctx context.Context, results []Result, parserID string, start *parser.State) error {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Concurrency)

	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		url := r.LogURL
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		if !g.cache.Claim(ctx, url, nil, g.opts.CacheTTL) {
			g.opts.Metrics.recordCacheHit()
			continue
		}
		eg.Go(func() error {
			return g.processLog(egCtx, url, parserID, start)
		})
	}
	return eg.Wait()
}

// processLog fetches, parses and caches one log. Unavailable logs are
// skipped; only context cancellation is an error.
func (g *Generator) processLog(ctx context.Context, url, parserID string, start *parser.State) error {
	text, err := g.fetcher.Fetch(ctx, url)
	if err != nil {
		// Unclaim so that a later run retries the download.
		_ = g.cache.Delete(ctx, url)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, ErrNoLog) {
			g.opts.Metrics.recordFetch("unavailable")
			logging.Debug("skipping log", "url", url, "error", err)
		} else {
			g.opts.Metrics.recordFetch("error")
			logging.Warn("failed to fetch log", "url", url, "error", err)
		}
		return nil
	}
	g.opts.Metrics.recordFetch("ok")

	res := parser.Parse(text, start)
	errs := logspecErrors(res, parserID)
	for _, e := range res.Errors {
		g.opts.Metrics.recordFault(e.Type())
	}
	g.cache.Set(ctx, url, errs, g.opts.CacheTTL)
	return nil
}

// logspecErrors converts the faults of a result into issue payloads. Empty
// and hidden fields are dropped; the signature and excerpt are added back
// under public names.
func logspecErrors(res *parser.Result, parserID string) []LogspecError {
	errs := make([]LogspecError, 0, len(res.Errors))
	for _, e := range res.Errors {
		fields := make(map[string]any)
		for k, v := range faults.Fields(e, false) {
			if !faults.IsEmpty(v) {
				fields[k] = v
			}
		}
		fields["signature"] = e.Signature()
		fields["log_excerpt"] = e.Report()
		errs = append(errs, LogspecError{
			Version: parser.Version,
			Parser:  parserID,
			Error:   fields,
		})
	}
	return errs
}

func newIssue(e LogspecError, ot ObjectType) Issue {
	fields := make(map[string]any, len(e.Error))
	for k, v := range e.Error {
		if k != "signature" {
			fields[k] = v
		}
	}
	sig, _ := e.Error["signature"].(string)

	comment := fmt.Sprintf("[logspec:%s] %v", ot.Parser, fields["error_type"])
	if summary, ok := fields["error_summary"]; ok {
		comment += fmt.Sprintf(" %v", summary)
	}
	if target, ok := fields["target"]; ok {
		comment += fmt.Sprintf(" in %v", target)
		if src, ok := fields["src_file"]; ok {
			comment += fmt.Sprintf(" (%v)", src)
		} else if script, ok := fields["script"]; ok {
			comment += fmt.Sprintf(" (%v)", script)
		}
	}

	return Issue{
		Origin:  origin,
		ID:      "_:" + sig,
		Version: 0,
		Comment: comment,
		Misc: map[string]any{
			"logspec": LogspecError{Version: e.Version, Parser: e.Parser, Error: fields},
		},
		BuildValid: ot.BuildValid,
		TestStatus: ot.TestStatus,
	}
}

// incidentID derives a stable incident id from the result, the issue and
// its version.
func incidentID(resultID, issueID string, issueVersion int) string {
	return "_:" + faults.GenerateSignature([]any{resultID, issueID, issueVersion})
}

func newIncident(resultID, issueID string, ot ObjectType, issueVersion int) Incident {
	inc := Incident{
		ID:           incidentID(resultID, issueID, issueVersion),
		IssueID:      issueID,
		IssueVersion: issueVersion,
		Comment:      incidentComment,
		Origin:       origin,
		Present:      true,
	}
	switch ot.IncidentIDField {
	case "build_id":
		inc.BuildID = resultID
	default:
		inc.TestID = resultID
	}
	return inc
}
