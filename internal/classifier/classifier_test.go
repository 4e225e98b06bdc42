package classifier

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/rhoci/rhoci/internal/catalog"
	"github.com/rhoci/rhoci/internal/models"
)

func mustCatalog(t *testing.T, sigs ...models.FailureSignature) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(sigs)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestBoundedExcerptIncludesBothAnchors(t *testing.T) {
	text := "prefix line\nSTART step\nrunning ERROR here\nEND step\ntrailer"
	cat := mustCatalog(t, models.FailureSignature{
		Name: "bounded", Category: "infra", Pattern: "ERROR",
		LowerBoundPattern: "START", UpperBoundPattern: "END",
	})

	matches := New(0).Classify(text, cat)
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	m := matches[0]
	if m.Excerpt != "START step\nrunning ERROR here\nEND" {
		t.Fatalf("unexpected excerpt: %q", m.Excerpt)
	}
	if text[m.Match.Start:m.Match.End] != "ERROR" {
		t.Fatalf("unexpected match span: %+v", m.Match)
	}
	if text[m.Evidence.Start:m.Evidence.End] != m.Excerpt {
		t.Fatalf("evidence span does not cover excerpt: %+v", m.Evidence)
	}
}

func TestNearestBoundsAreUsed(t *testing.T) {
	text := "START one\nSTART two\nERROR\nEND first\nEND second"
	cat := mustCatalog(t, models.FailureSignature{
		Name: "nearest", Pattern: "ERROR", LowerBoundPattern: "START", UpperBoundPattern: "END",
	})

	m := New(0).Classify(text, cat)[0]
	if m.Excerpt != "START two\nERROR\nEND" {
		t.Fatalf("unexpected excerpt: %q", m.Excerpt)
	}
}

func TestMissingBoundsFallBackToLine(t *testing.T) {
	text := "line one\nTraceback ... ConnectionRefusedError: [Errno 111]\nline three"
	cases := []struct {
		name string
		sig  models.FailureSignature
		want string
	}{
		{
			name: "no bounds",
			sig:  models.FailureSignature{Name: "conn-refused", Pattern: "ConnectionRefusedError"},
			want: "Traceback ... ConnectionRefusedError: [Errno 111]",
		},
		{
			name: "lower only",
			sig:  models.FailureSignature{Name: "conn-refused", Pattern: "ConnectionRefusedError", LowerBoundPattern: "line one"},
			want: "line one\nTraceback ... ConnectionRefusedError: [Errno 111]",
		},
		{
			name: "upper only",
			sig:  models.FailureSignature{Name: "conn-refused", Pattern: "ConnectionRefusedError", UpperBoundPattern: "three"},
			want: "Traceback ... ConnectionRefusedError: [Errno 111]\nline three",
		},
		{
			name: "bounds absent from text",
			sig:  models.FailureSignature{Name: "conn-refused", Pattern: "ConnectionRefusedError", LowerBoundPattern: "NOPE", UpperBoundPattern: "NADA"},
			want: "Traceback ... ConnectionRefusedError: [Errno 111]",
		},
		{
			name: "upper bound only before match",
			sig:  models.FailureSignature{Name: "conn-refused", Pattern: "ConnectionRefusedError", UpperBoundPattern: "one"},
			want: "Traceback ... ConnectionRefusedError: [Errno 111]",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			matches := New(0).Classify(text, mustCatalog(t, tc.sig))
			if len(matches) != 1 {
				t.Fatalf("expected one match, got %d", len(matches))
			}
			if matches[0].Excerpt != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, matches[0].Excerpt)
			}
		})
	}
}

func TestFirstOccurrenceOnly(t *testing.T) {
	text := "ERROR a\nERROR b\n"
	matches := New(0).Classify(text, mustCatalog(t, models.FailureSignature{Name: "err", Pattern: "ERROR"}))
	if len(matches) != 1 || matches[0].Excerpt != "ERROR a" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

func TestAllMatchingSignaturesReturned(t *testing.T) {
	text := "No space left on device\njava.lang.OutOfMemoryError: heap\n"
	cat := mustCatalog(t, catalog.Builtin()...)

	var names []string
	for _, m := range New(0).Classify(text, cat) {
		names = append(names, m.Signature)
	}
	if diff := cmp.Diff([]string{"java-oom", "no-space-left"}, names); diff != "" {
		t.Fatalf("unexpected signatures (-want +got):\n%s", diff)
	}
}

func TestClassificationIsOrderIndependent(t *testing.T) {
	sigs := []models.FailureSignature{
		{Name: "a-refused", Category: "infra", Pattern: "ConnectionRefusedError"},
		{Name: "b-traceback", Category: "python", Pattern: "Traceback", UpperBoundPattern: "Error"},
		{Name: "c-errno", Category: "infra", Pattern: `Errno \d+`, LowerBoundPattern: "Traceback"},
		{Name: "d-missing", Category: "infra", Pattern: "never present"},
	}
	text := "setup\nTraceback (most recent call last):\n  ConnectionRefusedError: [Errno 111]\nteardown\n"

	want := New(0).Classify(text, mustCatalog(t, sigs...))
	if len(want) != 3 {
		t.Fatalf("expected three matches, got %d", len(want))
	}

	permutations := [][]int{{3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}, {0, 2, 1, 3}}
	for _, perm := range permutations {
		shuffled := make([]models.FailureSignature, 0, len(sigs))
		for _, i := range perm {
			shuffled = append(shuffled, sigs[i])
		}
		got := New(0).Classify(text, mustCatalog(t, shuffled...))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("permutation %v changed result (-want +got):\n%s", perm, diff)
		}
	}
}

func TestExcerptIsBounded(t *testing.T) {
	text := "START\n" + strings.Repeat("x", 500) + " ERROR " + strings.Repeat("y", 500) + "\nEND"
	cat := mustCatalog(t, models.FailureSignature{Name: "big", Pattern: "ERROR", LowerBoundPattern: "START", UpperBoundPattern: "END"})

	m := New(64).Classify(text, cat)[0]
	if len(m.Excerpt) != 64 {
		t.Fatalf("expected 64 byte excerpt, got %d", len(m.Excerpt))
	}
	if !strings.Contains(m.Excerpt, "ERROR") {
		t.Fatalf("excerpt lost the match: %q", m.Excerpt)
	}
}

func TestClassifyBuildScopesTestMatches(t *testing.T) {
	cat := mustCatalog(t, catalog.Builtin()...)
	key := models.BuildKey{Job: "rhosp-ci", Number: 42}
	tests := []models.Test{
		{ClassName: "tempest.api.Net", Name: "test_ok", Status: models.TestSuccess, ErrorDetails: "ConnectionRefusedError"},
		{ClassName: "tempest.api.Net", Name: "test_bad", Status: models.TestFailure, StackTrace: "raise ConnectionRefusedError()"},
	}

	matches := New(0).ClassifyBuild(key, "all good\n", tests, cat)
	if len(matches) != 1 {
		t.Fatalf("expected one test-level match, got %+v", matches)
	}
	m := matches[0]
	if m.Build != key || m.TestName != "test_bad" || m.Signature != "conn-refused" || !m.TestLevel() {
		t.Fatalf("unexpected match: %+v", m)
	}
}

func TestEmptyTextHasNoMatches(t *testing.T) {
	if got := New(0).Classify("", mustCatalog(t, catalog.Builtin()...)); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestAnchoredUpperBoundIsSearchedInFullText(t *testing.T) {
	text := "START\nboom ERRORENDX more\nEND"
	cat := mustCatalog(t, models.FailureSignature{
		Name: "anchored", Pattern: "ERROR", LowerBoundPattern: "START", UpperBoundPattern: `(?m)^END`,
	})

	m := New(0).Classify(text, cat)[0]
	if m.Excerpt != text {
		t.Fatalf("expected excerpt to end at the line-start END, got %q", m.Excerpt)
	}
}

func TestWordBoundaryLowerBoundIsSearchedInFullText(t *testing.T) {
	text := "STARTUP\nSTART\nboom STARTERROR end\ntail"
	cat := mustCatalog(t, models.FailureSignature{
		Name: "word", Pattern: "ERROR", LowerBoundPattern: `START\b`,
	})

	m := New(0).Classify(text, cat)[0]
	if m.Excerpt != "START\nboom STARTERROR end" {
		t.Fatalf("unexpected excerpt: %q", m.Excerpt)
	}
	if text[m.Evidence.Start:m.Evidence.End] != m.Excerpt {
		t.Fatalf("evidence span does not cover excerpt: %+v", m.Evidence)
	}
}

func TestClampedExcerptKeepsRunesWhole(t *testing.T) {
	text := "START\n" + strings.Repeat("é", 200) + " ERROR " + strings.Repeat("ü", 200) + "\nEND"
	cat := mustCatalog(t, models.FailureSignature{Name: "wide", Pattern: "ERROR", LowerBoundPattern: "START", UpperBoundPattern: "END"})

	for _, max := range []int{63, 64, 65} {
		m := New(max).Classify(text, cat)[0]
		if len(m.Excerpt) > max {
			t.Fatalf("max=%d: excerpt is %d bytes", max, len(m.Excerpt))
		}
		if !utf8.ValidString(m.Excerpt) {
			t.Fatalf("max=%d: excerpt split a rune: %q", max, m.Excerpt)
		}
		if text[m.Evidence.Start:m.Evidence.End] != m.Excerpt {
			t.Fatalf("max=%d: evidence span does not cover excerpt: %+v", max, m.Evidence)
		}
		if !strings.Contains(m.Excerpt, "ERROR") {
			t.Fatalf("max=%d: excerpt lost the match: %q", max, m.Excerpt)
		}
	}
}
