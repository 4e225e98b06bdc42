package api

import (
	"fmt"
	"strings"

	"github.com/rhoci/rhoci/internal/models"
)

// FromBuildRequest validates a BuildRequest and returns its natural key.
func FromBuildRequest(req *BuildRequest) (models.BuildKey, error) {
	if req == nil {
		return models.BuildKey{}, fmt.Errorf("request is nil")
	}
	job := strings.Trim(strings.TrimSpace(req.Job), "/")
	if job == "" {
		return models.BuildKey{}, fmt.Errorf("job is required")
	}
	if req.Number <= 0 {
		return models.BuildKey{}, fmt.Errorf("number must be positive")
	}
	return models.BuildKey{Job: job, Number: req.Number}, nil
}

// ToBuild converts a stored build into its wire form.
func ToBuild(rec models.BuildRecord) Build {
	return Build{
		Job:        rec.Job,
		Number:     rec.Number,
		Status:     string(rec.Status),
		State:      string(rec.State),
		StartedAt:  rec.Timestamp,
		DurationMs: rec.Duration.Milliseconds(),
		ConsoleURL: rec.ConsoleURL,
		ReportURL:  rec.ReportURL,
		Attempts:   rec.Attempts,
		LastError:  rec.LastError,
		TestCount:  rec.TestCount,
	}
}

// ToTests converts test cases into their wire form.
func ToTests(tests []models.Test) []Test {
	out := make([]Test, 0, len(tests))
	for _, t := range tests {
		out = append(out, Test{
			ClassName:    t.ClassName,
			Name:         t.Name,
			Status:       string(t.Status),
			DurationMs:   t.Duration.Milliseconds(),
			ErrorDetails: t.ErrorDetails,
			StackTrace:   t.StackTrace,
		})
	}
	return out
}

// ToFailureMatches converts failure matches into their wire form.
func ToFailureMatches(matches []models.FailureMatch) []FailureMatch {
	out := make([]FailureMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, FailureMatch{
			ClassName:  m.ClassName,
			TestName:   m.TestName,
			Signature:  m.Signature,
			Category:   m.Category,
			Excerpt:    m.Excerpt,
			MatchStart: m.Match.Start,
			MatchEnd:   m.Match.End,
		})
	}
	return out
}

// ToTestStats converts the failing tests ranking into its wire form.
func ToTestStats(stats []models.TestFailureStat) []TestStat {
	out := make([]TestStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, TestStat(s))
	}
	return out
}

// ToUniqueTests converts the distinct test listing into its wire form.
func ToUniqueTests(tests []models.UniqueTest) []UniqueTest {
	out := make([]UniqueTest, 0, len(tests))
	for _, t := range tests {
		out = append(out, UniqueTest(t))
	}
	return out
}

// ToSignatures converts signature definitions into their wire form.
func ToSignatures(sigs []models.FailureSignature) []Signature {
	out := make([]Signature, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, Signature{
			Name:              s.Name,
			Category:          s.Category,
			Pattern:           s.Pattern,
			UpperBoundPattern: s.UpperBoundPattern,
			LowerBoundPattern: s.LowerBoundPattern,
			Action:            s.Action,
			Cause:             s.Cause,
		})
	}
	return out
}

// ToSquads converts squads into their wire form.
func ToSquads(squads []models.Squad) []Squad {
	out := make([]Squad, 0, len(squads))
	for _, s := range squads {
		out = append(out, Squad{Name: s.Name, DFG: s.DFG, Components: append([]string(nil), s.Components...)})
	}
	return out
}

// ToIngestStatus folds per-state counts into the status response.
func ToIngestStatus(counts map[models.IngestState]int) *IngestStatusResponse {
	return &IngestStatusResponse{
		Pending:   counts[models.StatePending],
		Complete:  counts[models.StateComplete],
		Abandoned: counts[models.StateAbandoned],
	}
}
