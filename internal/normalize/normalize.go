// Package normalize converts Jenkins payloads into canonical build and test records.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/rhoci/rhoci/internal/jenkins"
	"github.com/rhoci/rhoci/internal/models"
	"github.com/rhoci/rhoci/internal/utils"
)

// UnknownClass is the class name of cases that carry none.
const UnknownClass = "unknown"

// MalformedPayloadError describes one upstream record that could not be used.
type MalformedPayloadError struct {
	Index  int
	Field  string
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("test case %d: %s %s", e.Index, e.Field, e.Reason)
}

// Normalize maps a raw build and its optional test report into canonical records. It never
// fails as a whole: unusable cases are skipped and reported in the returned warnings.
func Normalize(raw jenkins.RawBuild, report *jenkins.RawTestReport) (models.Build, []models.Test, []error) {
	build := models.Build{
		Job:       raw.Job,
		Number:    raw.Number,
		Status:    buildStatus(raw),
		Timestamp: utils.FromEpochMillis(raw.Timestamp),
		Duration:  millis(raw.Duration),
	}
	if raw.URL != "" {
		base := strings.TrimRight(raw.URL, "/")
		build.ConsoleURL = base + "/console"
		build.ReportURL = base + "/testReport"
	}

	cases := report.Cases()
	if len(cases) == 0 {
		return build, nil, nil
	}

	var warnings []error
	tests := make([]models.Test, 0, len(cases))
	seen := make(map[[2]string]struct{}, len(cases))
	for i, c := range cases {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			warnings = append(warnings, &MalformedPayloadError{Index: i, Field: "name", Reason: "is empty"})
			continue
		}
		className := strings.TrimSpace(c.ClassName)
		if className == "" {
			className = UnknownClass
		}
		key := [2]string{className, name}
		if _, dup := seen[key]; dup {
			warnings = append(warnings, &MalformedPayloadError{Index: i, Field: "name", Reason: fmt.Sprintf("duplicates %s.%s", className, name)})
			continue
		}
		seen[key] = struct{}{}

		tests = append(tests, models.Test{
			ClassName:    className,
			Name:         name,
			Status:       testStatus(c),
			Duration:     seconds(c.Duration),
			ErrorDetails: c.ErrorDetails,
			StackTrace:   c.ErrorStackTrace,
		})
	}
	return build, tests, warnings
}

func buildStatus(raw jenkins.RawBuild) models.BuildStatus {
	if raw.Building {
		return models.BuildRunning
	}
	if raw.Result == nil {
		return models.BuildUnknown
	}
	switch strings.ToUpper(*raw.Result) {
	case "SUCCESS":
		return models.BuildSuccess
	case "FAILURE":
		return models.BuildFailure
	case "UNSTABLE":
		return models.BuildUnstable
	case "ABORTED", "NOT_BUILT":
		return models.BuildAborted
	default:
		return models.BuildUnknown
	}
}

func testStatus(c jenkins.RawCase) models.TestStatus {
	switch strings.ToUpper(c.Status) {
	case "PASSED", "FIXED":
		return models.TestSuccess
	case "FAILED", "REGRESSION":
		return models.TestFailure
	case "SKIPPED":
		return models.TestSkipped
	}
	if c.Skipped {
		return models.TestSkipped
	}
	return models.TestUnknown
}

func millis(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func seconds(s *float64) time.Duration {
	if s == nil || *s <= 0 {
		return 0
	}
	return time.Duration(*s * float64(time.Second))
}
