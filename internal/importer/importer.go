// Package importer reconciles counselling records read from spreadsheets
// against the canonical reference data and classifies each record for
// persistence or manual review.
package importer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/counselling-resolver/internal/fetcher"
	"github.com/sells-group/counselling-resolver/internal/fusion"
	"github.com/sells-group/counselling-resolver/internal/refstore"
)

// Status is the review state of a record or field.
type Status string

// Record statuses, from best to worst.
const (
	StatusAccepted          Status = "accepted"
	StatusPendingValidation Status = "pending_validation"
	StatusRejected          Status = "rejected"
)

func (s Status) rank() int {
	switch s {
	case StatusAccepted:
		return 0
	case StatusPendingValidation:
		return 1
	default:
		return 2
	}
}

func worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Field is a reconcilable column of a counselling record.
type Field struct {
	Name    string
	Type    refstore.EntityType
	Headers []string // accepted header spellings
}

// Fields lists the reconcilable columns in resolution order.
var Fields = []Field{
	{Name: "state", Type: refstore.State, Headers: []string{"state", "domicile"}},
	{Name: "college", Type: refstore.College, Headers: []string{"college", "institute", "college name", "allotted institute"}},
	{Name: "program", Type: refstore.Program, Headers: []string{"program", "course", "programme"}},
	{Name: "quota", Type: refstore.Quota, Headers: []string{"quota", "allotted quota"}},
	{Name: "category", Type: refstore.Category, Headers: []string{"category", "allotted category"}},
}

// Row is one counselling record as read from a sheet.
type Row struct {
	Line   int               `json:"line"`
	Round  string            `json:"round,omitempty"`
	Rank   string            `json:"rank,omitempty"`
	Values map[string]string `json:"values"` // field name -> raw text
}

// Resolution is the outcome of reconciling one field.
type Resolution struct {
	Field    string  `json:"field"`
	Raw      string  `json:"raw"`
	EntityID string  `json:"entity_id,omitempty"`
	Name     string  `json:"name,omitempty"`
	Score    float64 `json:"score"`
	Status   Status  `json:"status"`
}

// RowResult is a classified record.
type RowResult struct {
	Row         Row          `json:"row"`
	Resolutions []Resolution `json:"resolutions"`
	Status      Status       `json:"status"`
	Reason      string       `json:"reason,omitempty"`
}

// Report summarizes an import run.
type Report struct {
	Rows     []RowResult   `json:"rows"`
	Accepted int           `json:"accepted"`
	Pending  int           `json:"pending_validation"`
	Rejected int           `json:"rejected"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Resolver maps raw text onto ranked canonical entities.
type Resolver interface {
	ResolveEntity(ctx context.Context, raw string, t refstore.EntityType, hint *refstore.Location) ([]fusion.Result, error)
}

// Options is the acceptance policy.
type Options struct {
	Concurrency     int
	AcceptThreshold float64
	ReviewThreshold float64
}

// DefaultOptions returns the standard policy: accept at 70, review at 50.
func DefaultOptions() Options {
	return Options{Concurrency: 8, AcceptThreshold: 70, ReviewThreshold: 50}
}

// Importer classifies counselling records.
type Importer struct {
	resolver Resolver
	opts     Options
}

// New creates an Importer.
func New(r Resolver, opts Options) *Importer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultOptions().Concurrency
	}
	return &Importer{resolver: r, opts: opts}
}

// ReadRows reads counselling records from a CSV, TSV, or XLSX file.
func ReadRows(ctx context.Context, path string) ([]Row, error) {
	sheet, err := fetcher.ReadSheet(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: read sheet")
	}

	cols := make(map[string]int, len(Fields))
	for _, f := range Fields {
		if i := sheet.Column(f.Headers...); i >= 0 {
			cols[f.Name] = i
		}
	}
	if len(cols) == 0 {
		return nil, eris.Errorf("importer: %s has none of the columns state, college, program, quota, category", path)
	}
	roundCol := sheet.Column("round", "counselling round")
	rankCol := sheet.Column("rank", "air", "all india rank")

	rows := make([]Row, 0, len(sheet.Rows))
	for i, r := range sheet.Rows {
		row := Row{
			Line:   i + 2, // header is line 1
			Round:  fetcher.Value(r, roundCol),
			Rank:   fetcher.Value(r, rankCol),
			Values: make(map[string]string, len(cols)),
		}
		for name, col := range cols {
			if v := fetcher.Value(r, col); v != "" {
				row.Values[name] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ImportFile reads and classifies every record in path.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	rows, err := ReadRows(ctx, path)
	if err != nil {
		return nil, err
	}
	return im.Run(ctx, rows)
}

// Run classifies rows concurrently. Resolver errors abort the run; a field
// that resolves to nothing only rejects its row.
func (im *Importer) Run(ctx context.Context, rows []Row) (*Report, error) {
	start := time.Now()
	results := make([]RowResult, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Concurrency)
	for i, row := range rows {
		g.Go(func() error {
			res, err := im.classify(gctx, row)
			if err != nil {
				return eris.Wrapf(err, "importer: line %d", row.Line)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Rows: results, Elapsed: time.Since(start)}
	for _, r := range results {
		switch r.Status {
		case StatusAccepted:
			report.Accepted++
		case StatusPendingValidation:
			report.Pending++
		default:
			report.Rejected++
		}
	}
	zap.L().Info("importer: run complete",
		zap.Int("rows", len(rows)),
		zap.Int("accepted", report.Accepted),
		zap.Int("pending_validation", report.Pending),
		zap.Int("rejected", report.Rejected),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (im *Importer) classify(ctx context.Context, row Row) (RowResult, error) {
	res := RowResult{Row: row, Status: StatusAccepted}

	if row.Rank != "" {
		if _, err := strconv.Atoi(strings.ReplaceAll(row.Rank, ",", "")); err != nil {
			res.Status = StatusRejected
			res.Reason = "rank is not a number"
		}
	}

	var hint *refstore.Location
	if st := row.Values["state"]; st != "" {
		hint = &refstore.Location{State: st}
	}

	for _, f := range Fields {
		raw, ok := row.Values[f.Name]
		if !ok {
			continue
		}
		var h *refstore.Location
		if f.Type == refstore.College {
			h = hint
		}
		results, err := im.resolver.ResolveEntity(ctx, raw, f.Type, h)
		if err != nil {
			return RowResult{}, eris.Wrapf(err, "resolve %s", f.Name)
		}
		r := im.resolution(f.Name, raw, results)
		res.Resolutions = append(res.Resolutions, r)
		res.Status = worse(res.Status, r.Status)
		if r.Status == StatusRejected && res.Reason == "" {
			res.Reason = f.Name + " did not match"
		}
	}
	if len(res.Resolutions) == 0 {
		res.Status = StatusRejected
		res.Reason = "no reconcilable fields"
	}
	return res, nil
}

func (im *Importer) resolution(field, raw string, results []fusion.Result) Resolution {
	r := Resolution{Field: field, Raw: raw, Status: StatusRejected}
	if len(results) == 0 {
		return r
	}
	top := results[0]
	r.EntityID = top.Entity.ID
	r.Name = top.Entity.CanonicalName
	r.Score = top.FinalScore
	switch {
	case top.FinalScore >= im.opts.AcceptThreshold:
		r.Status = StatusAccepted
	case top.FinalScore >= im.opts.ReviewThreshold:
		r.Status = StatusPendingValidation
	}
	return r
}
