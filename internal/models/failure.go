package models

// FailureSignature is a named failure-matching rule with remediation metadata.
type FailureSignature struct {
	Name              string `yaml:"name"`
	Category          string `yaml:"category"`
	Pattern           string `yaml:"pattern"`
	UpperBoundPattern string `yaml:"upper_bound_pattern"`
	LowerBoundPattern string `yaml:"lower_bound_pattern"`
	Action            string `yaml:"action"`
	Cause             string `yaml:"cause"`
}

// Span is a half-open byte range [Start, End) into the scanned text.
type Span struct {
	Start int
	End   int
}

// FailureMatch links a build (and optionally one of its tests) to a signature.
type FailureMatch struct {
	Build     BuildKey
	ClassName string
	TestName  string
	Signature string
	Category  string
	Excerpt   string
	Match     Span
	Evidence  Span
}

// TestLevel reports whether the match was found in a test's failure output.
func (m FailureMatch) TestLevel() bool {
	return m.TestName != ""
}

// TestFailureStat aggregates outcomes of a test across ingested builds.
type TestFailureStat struct {
	ClassName string
	Name      string
	Failures  int
	Successes int
}

// UniqueTest is a distinct test case with the number of ingested builds that ran it.
type UniqueTest struct {
	ClassName string
	Name      string
	Builds    int
}

