package models

import (
	"errors"
	"fmt"
	"time"
)

// Job identifies a named pipeline on the CI server.
type Job struct {
	Name string
	URL  string
}

// BuildKey is the natural key of a build.
type BuildKey struct {
	Job    string
	Number int
}

func (k BuildKey) String() string {
	return fmt.Sprintf("%s#%d", k.Job, k.Number)
}

// BuildStatus is the CI-reported outcome of a build.
type BuildStatus string

const (
	BuildRunning  BuildStatus = "running"
	BuildSuccess  BuildStatus = "success"
	BuildFailure  BuildStatus = "failure"
	BuildUnstable BuildStatus = "unstable"
	BuildAborted  BuildStatus = "aborted"
	BuildUnknown  BuildStatus = "unknown"
)

// Terminal reports whether the status is final.
func (s BuildStatus) Terminal() bool {
	return s != BuildRunning
}

// Build is a normalised CI build.
type Build struct {
	Job        string
	Number     int
	Status     BuildStatus
	Timestamp  time.Time
	Duration   time.Duration
	ConsoleURL string
	ReportURL  string
}

// Key returns the build natural key.
func (b Build) Key() BuildKey {
	return BuildKey{Job: b.Job, Number: b.Number}
}

// TestStatus is the outcome of a single test case.
type TestStatus string

const (
	TestSuccess TestStatus = "success"
	TestFailure TestStatus = "failure"
	TestSkipped TestStatus = "skipped"
	TestUnknown TestStatus = "unknown"
)

// Test is a normalised test case belonging to exactly one build.
type Test struct {
	ClassName    string
	Name         string
	Status       TestStatus
	Duration     time.Duration
	ErrorDetails string
	StackTrace   string
}

// IngestState tracks where a discovered build sits in the ingestion pipeline.
type IngestState string

const (
	StatePending   IngestState = "pending"
	StateComplete  IngestState = "complete"
	StateAbandoned IngestState = "abandoned"
)

// ErrNotPending is returned when a build leaves the pending state twice.
var ErrNotPending = errors.New("build is not pending")

// PendingBuild is a discovered build waiting for its detail fetch.
type PendingBuild struct {
	Key           BuildKey
	URL           string
	Attempts      int
	NotFound      int
	NextAttemptAt time.Time
	LastError     string
	DiscoveredAt  time.Time
}

// BuildRecord is a stored build with its ingestion bookkeeping.
type BuildRecord struct {
	Build
	State     IngestState
	Attempts  int
	LastError string
	TestCount int
}
