package jenkins

// BuildRef identifies a build listed under a job.
type BuildRef struct {
	Job    string
	Number int
	URL    string
}

// RawBuild is the subset of the Jenkins build API the agent uses. Result is nil while the
// build is running.
type RawBuild struct {
	Job       string  `json:"-"`
	Number    int     `json:"number"`
	Result    *string `json:"result"`
	Building  bool    `json:"building"`
	Timestamp int64   `json:"timestamp"`
	Duration  int64   `json:"duration"`
	URL       string  `json:"url"`
}

// RawTestReport mirrors /testReport/api/json. Matrix and multi-job builds nest their suites
// under childReports.
type RawTestReport struct {
	Suites       []RawSuite       `json:"suites"`
	ChildReports []RawChildReport `json:"childReports"`
}

// RawChildReport wraps the report of one child build.
type RawChildReport struct {
	Result *RawTestReport `json:"result"`
}

// RawSuite is one junit suite.
type RawSuite struct {
	Name  string    `json:"name"`
	Cases []RawCase `json:"cases"`
}

// RawCase is one junit test case. Duration is in seconds.
type RawCase struct {
	ClassName       string   `json:"className"`
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	Duration        *float64 `json:"duration"`
	ErrorDetails    string   `json:"errorDetails"`
	ErrorStackTrace string   `json:"errorStackTrace"`
	Skipped         bool     `json:"skipped"`
}

// Cases flattens suites of the report and all child reports.
func (r *RawTestReport) Cases() []RawCase {
	if r == nil {
		return nil
	}
	var out []RawCase
	for _, suite := range r.Suites {
		out = append(out, suite.Cases...)
	}
	for _, child := range r.ChildReports {
		out = append(out, child.Result.Cases()...)
	}
	return out
}
