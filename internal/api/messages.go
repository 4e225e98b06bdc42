package api

import "time"

// Build is the wire form of a stored build.
type Build struct {
	Job        string    `json:"job"`
	Number     int       `json:"number"`
	Status     string    `json:"status"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	ConsoleURL string    `json:"console_url,omitempty"`
	ReportURL  string    `json:"report_url,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	TestCount  int       `json:"test_count"`
}

// Test is the wire form of a test case.
type Test struct {
	ClassName    string `json:"class_name"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"duration_ms"`
	ErrorDetails string `json:"error_details,omitempty"`
	StackTrace   string `json:"stack_trace,omitempty"`
}

// FailureMatch is the wire form of a classified failure.
type FailureMatch struct {
	ClassName  string `json:"class_name,omitempty"`
	TestName   string `json:"test_name,omitempty"`
	Signature  string `json:"signature"`
	Category   string `json:"category,omitempty"`
	Excerpt    string `json:"excerpt"`
	MatchStart int    `json:"match_start"`
	MatchEnd   int    `json:"match_end"`
}

// TestStat is one row of the failing tests ranking.
type TestStat struct {
	ClassName string `json:"class_name"`
	Name      string `json:"name"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`
}

// UniqueTest is a distinct test case with the number of builds that ran it.
type UniqueTest struct {
	ClassName string `json:"class_name"`
	Name      string `json:"name"`
	Builds    int    `json:"builds"`
}

// Signature is the wire form of a failure signature.
type Signature struct {
	Name              string `json:"name"`
	Category          string `json:"category,omitempty"`
	Pattern           string `json:"pattern"`
	UpperBoundPattern string `json:"upper_bound_pattern,omitempty"`
	LowerBoundPattern string `json:"lower_bound_pattern,omitempty"`
	Action            string `json:"action,omitempty"`
	Cause             string `json:"cause,omitempty"`
}

// Squad is the wire form of a squad with its DFG.
type Squad struct {
	Name       string   `json:"name"`
	DFG        string   `json:"dfg"`
	Components []string `json:"components,omitempty"`
}

type ListBuildsRequest struct {
	Job   string `json:"job,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type ListBuildsResponse struct {
	Builds []Build `json:"builds"`
}

// BuildRequest addresses one build by its natural key.
type BuildRequest struct {
	Job    string `json:"job"`
	Number int    `json:"number"`
}

// GetBuildTestsResponse carries the tests of an ingested build. For a build that is not
// ingested yet Ingested is false and ReportURL points at Jenkins.
type GetBuildTestsResponse struct {
	Ingested  bool   `json:"ingested"`
	Build     *Build `json:"build,omitempty"`
	Tests     []Test `json:"tests,omitempty"`
	ReportURL string `json:"report_url,omitempty"`
}

type ListFailureMatchesResponse struct {
	Matches []FailureMatch `json:"matches"`
}

type TopFailingTestsRequest struct {
	Job   string `json:"job,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type TopFailingTestsResponse struct {
	Tests []TestStat `json:"tests"`
}

type ListUniqueTestsRequest struct {
	Job   string `json:"job,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type ListUniqueTestsResponse struct {
	Tests []UniqueTest `json:"tests"`
}

type ListSignaturesRequest struct {
	Name string `json:"name,omitempty"`
}

type ListSignaturesResponse struct {
	Signatures []Signature `json:"signatures"`
}

type ListSquadsRequest struct{}

type ListSquadsResponse struct {
	Squads []Squad `json:"squads"`
}

type IngestStatusRequest struct{}

type IngestStatusResponse struct {
	Pending   int `json:"pending"`
	Complete  int `json:"complete"`
	Abandoned int `json:"abandoned"`
}
