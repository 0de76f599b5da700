// Package codegen drives schema-to-source generation: given a validated
// schema.Schema, each target language backend (codegen/golang,
// codegen/typescript) walks the same type definitions and emits source
// that encodes/decodes byte-for-byte compatible wire data, built against
// a small runtime import rather than reimplementing bit-level codec
// logic per target.
//
// The per-target emission interface keeps language backends
// interchangeable: new languages plug in without touching the
// schema-walking logic twice.
package codegen

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/binschema/binschema/schema"
)

// Target names one source-generation backend (a language) and reports
// its output file naming convention.
type Target interface {
	// Name identifies the target; GenerateAll records it in each Result
	// and prefixes it to that target's generation error.
	Name() string

	// FileExtension is the suffix (without dot) appended to a generated
	// file's name, e.g. "go" or "ts".
	FileExtension() string

	// Generate emits the full source file for every sequence/union type in
	// s, as one document.
	Generate(s *schema.Schema) ([]byte, error)
}

// Result is one target's generated output.
type Result struct {
	Target string
	Source []byte
	Err    error
}

// GenerateAll runs every target concurrently against the same schema via
// errgroup, mirroring interp.RoundTripAll's fan-out: independent targets
// share no mutable state, each writing into its own buffer.
func GenerateAll(ctx context.Context, s *schema.Schema, targets []Target) ([]Result, error) {
	results := make([]Result, len(targets))
	g, _ := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			var buf bytes.Buffer
			src, err := t.Generate(s)
			if err != nil {
				results[i] = Result{Target: t.Name(), Err: fmt.Errorf("%s: %w", t.Name(), err)}
				return nil
			}
			buf.Write(src)
			results[i] = Result{Target: t.Name(), Source: buf.Bytes()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
