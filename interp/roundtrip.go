package interp

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/binschema/binschema/bitio"
	"github.com/binschema/binschema/schema"
)

// Case is one round-trip check: RoundTripAll encodes Values as TypeName
// and decodes the result back, returning both in a Result. It does not
// compare the decoded values with Values.
type Case struct {
	TypeName string
	Values   map[string]any
}

// Result is one Case's outcome.
type Result struct {
	Case    Case
	Encoded []byte
	Decoded map[string]any
	Err     error
}

// RoundTripAll runs every case concurrently via errgroup, one buffer
// per goroutine. It's the host-side equivalent of the codegen
// package's concurrent per-target generation: many independent
// encode-then-decode checks with no shared mutable state between them.
func RoundTripAll(ctx context.Context, s *schema.Schema, cases []Case) ([]Result, error) {
	results := make([]Result, len(cases))
	g, _ := errgroup.WithContext(ctx)
	for i, c := range cases {
		i, c := i, c
		g.Go(func() error {
			results[i] = runCase(s, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runCase(s *schema.Schema, c Case) Result {
	encoded, err := Encode(s, c.TypeName, c.Values)
	if err != nil {
		return Result{Case: c, Err: fmt.Errorf("encode: %w", err)}
	}
	r := bitio.NewBufferReader(encoded, toBitioOrder(s.Config.EffectiveBitOrder()), toBitioEndian(s.Config.EffectiveEndianness()))
	decoded, err := Decode(s, c.TypeName, r)
	if err != nil {
		return Result{Case: c, Encoded: encoded, Err: fmt.Errorf("decode: %w", err)}
	}
	return Result{Case: c, Encoded: encoded, Decoded: decoded}
}
