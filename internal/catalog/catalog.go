// Package catalog holds the immutable set of known failure signatures and merges it into storage.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhoci/rhoci/internal/models"
)

// ConfigurationError reports a signature definition that cannot be loaded.
type ConfigurationError struct {
	Signature string
	Field     string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Signature == "" {
		return fmt.Sprintf("invalid signature: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid signature %q: %s %s", e.Signature, e.Field, e.Reason)
}

// Signature is a signature with its compiled patterns. Bound regexps are nil when unset.
type Signature struct {
	models.FailureSignature
	Match *regexp.Regexp
	Lower *regexp.Regexp
	Upper *regexp.Regexp
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	sigs []Signature
}

// New validates and compiles signatures. Signatures are ordered by name so that every
// consumer sees the same sequence regardless of input order.
func New(sigs []models.FailureSignature) (*Catalog, error) {
	if err := Validate(sigs); err != nil {
		return nil, err
	}
	compiled := make([]Signature, 0, len(sigs))
	for _, sig := range sigs {
		c := Signature{FailureSignature: sig, Match: regexp.MustCompile(sig.Pattern)}
		if sig.LowerBoundPattern != "" {
			c.Lower = regexp.MustCompile(sig.LowerBoundPattern)
		}
		if sig.UpperBoundPattern != "" {
			c.Upper = regexp.MustCompile(sig.UpperBoundPattern)
		}
		compiled = append(compiled, c)
	}
	sort.Slice(compiled, func(i, j int) bool { return compiled[i].Name < compiled[j].Name })
	return &Catalog{sigs: compiled}, nil
}

// Validate checks names are present, unpadded and unique, and that every pattern compiles.
func Validate(sigs []models.FailureSignature) error {
	seen := make(map[string]struct{}, len(sigs))
	var errs []error
	for _, sig := range sigs {
		name := strings.TrimSpace(sig.Name)
		if name == "" {
			errs = append(errs, &ConfigurationError{Field: "name", Reason: "is empty"})
			continue
		}
		if name != sig.Name {
			errs = append(errs, &ConfigurationError{Signature: name, Field: "name", Reason: "has surrounding whitespace"})
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, &ConfigurationError{Signature: name, Field: "name", Reason: "is duplicated"})
			continue
		}
		seen[name] = struct{}{}

		if strings.TrimSpace(sig.Pattern) == "" {
			errs = append(errs, &ConfigurationError{Signature: name, Field: "pattern", Reason: "is empty"})
			continue
		}
		for field, expr := range map[string]string{
			"pattern":             sig.Pattern,
			"lower_bound_pattern": sig.LowerBoundPattern,
			"upper_bound_pattern": sig.UpperBoundPattern,
		} {
			if expr == "" {
				continue
			}
			if _, err := regexp.Compile(expr); err != nil {
				errs = append(errs, &ConfigurationError{Signature: name, Field: field, Reason: err.Error()})
			}
		}
	}
	return errors.Join(errs...)
}

// Signatures returns the compiled signatures ordered by name.
func (c *Catalog) Signatures() []Signature {
	if c == nil {
		return nil
	}
	return append([]Signature(nil), c.sigs...)
}

// Definitions returns the raw signature definitions ordered by name.
func (c *Catalog) Definitions() []models.FailureSignature {
	if c == nil {
		return nil
	}
	out := make([]models.FailureSignature, 0, len(c.sigs))
	for _, s := range c.sigs {
		out = append(out, s.FailureSignature)
	}
	return out
}

// Len returns the number of signatures.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sigs)
}

// Store abstracts persistence for signatures.
type Store interface {
	InsertSignatureIfAbsent(ctx context.Context, sig models.FailureSignature) (bool, error)
}

// Load merges the catalog into storage, inserting only names that are not stored yet.
// Stored entries are never overwritten so out-of-band edits survive restarts.
func Load(ctx context.Context, logger *slog.Logger, store Store, c *Catalog) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loaded := 0
	for _, sig := range c.Definitions() {
		inserted, err := store.InsertSignatureIfAbsent(ctx, sig)
		if err != nil {
			return loaded, fmt.Errorf("load signature %s: %w", sig.Name, err)
		}
		if inserted {
			loaded++
			logger.Info("loaded a new failure signature", slog.String("name", sig.Name), slog.String("category", sig.Category))
		}
	}
	return loaded, nil
}

type fileFormat struct {
	Signatures []models.FailureSignature `yaml:"signatures"`
}

// LoadFile reads signature definitions from a YAML file with a top-level signatures list.
func LoadFile(path string) ([]models.FailureSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return f.Signatures, nil
}

// Merge overlays extra on base; an extra signature replaces a base signature of the same name.
func Merge(base, extra []models.FailureSignature) []models.FailureSignature {
	index := make(map[string]int, len(base))
	out := make([]models.FailureSignature, 0, len(base)+len(extra))
	for _, sig := range base {
		index[sig.Name] = len(out)
		out = append(out, sig)
	}
	for _, sig := range extra {
		if i, ok := index[sig.Name]; ok {
			out[i] = sig
			continue
		}
		index[sig.Name] = len(out)
		out = append(out, sig)
	}
	return out
}

// Build returns the built-in catalog, extended by the file at path when path is set.
func Build(path string) (*Catalog, error) {
	sigs := Builtin()
	if path != "" {
		extra, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		sigs = Merge(sigs, extra)
	}
	return New(sigs)
}
