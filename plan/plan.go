// Package plan builds an ordered, placeholder-and-patch aware execution
// plan for a schema type: the sequence of steps an encoder runs, with
// computed fields (length_of/position_of/crc) resolved to a
// reserve-now/patch-later instruction pair instead of a value that must
// already be known at write time.
//
// Solving the placeholder ordering once, ahead of time, lets the
// host-side interpreter's encoder and every code generator's encode path
// consume the same plan instead of each re-deriving which computed field
// patches when. The decoders do not use a plan: they read fields in
// declaration order.
package plan

import (
	"fmt"

	"github.com/binschema/binschema/schema"
)

// StepKind is the closed set of instruction shapes a Plan emits.
type StepKind int

const (
	StepField StepKind = iota
	StepPlaceholder
	StepPatch
)

// Step is one instruction in an encode plan.
type Step struct {
	Kind StepKind

	// StepField: the field to read/write in place.
	Field *schema.Field

	// StepPlaceholder: reserve width bytes for a field whose value isn't
	// known until later steps run; the StepPatch whose PatchField is the
	// same field resolves it.
	PlaceholderField *schema.Field
	PlaceholderWidth int // bytes

	// StepPatch: compute and backfill the placeholder registered under
	// the same Field.
	PatchField *schema.Field
}

// Plan is the ordered instruction list for encoding one type: every field
// in declaration order (computed fields as placeholders), then the patches.
type Plan struct {
	TypeName string
	Steps    []Step
}

// Build constructs a Plan for typeName, resolving length_of/position_of/
// crc fields into placeholder+patch pairs ordered so that every patch
// runs only after the bytes it measures have all been written: a patch
// whose Computed.FromAfterField (or CRC.AfterField) names a computed
// field is ordered after that field's own patch.
func Build(s *schema.Schema, typeName string) (*Plan, error) {
	td, ok := s.ByName(typeName)
	if !ok {
		return nil, fmt.Errorf("plan: unknown type %q", typeName)
	}
	if td.Kind != schema.KindSequence {
		return nil, fmt.Errorf("plan: type %q is not a sequence type", typeName)
	}

	p := &Plan{TypeName: typeName}

	var computedFields []*schema.Field
	fieldIndex := make(map[string]int, len(td.Fields))
	for i, f := range td.Fields {
		fieldIndex[f.Name] = i
		if isComputed(f) {
			computedFields = append(computedFields, f)
		}
	}

	patchOrder, err := orderPatches(computedFields, fieldIndex)
	if err != nil {
		return nil, fmt.Errorf("plan: type %q: %w", typeName, err)
	}

	for _, f := range td.Fields {
		if isComputed(f) {
			width, err := placeholderWidth(f)
			if err != nil {
				return nil, fmt.Errorf("plan: type %q: field %q: %w", typeName, f.Name, err)
			}
			p.Steps = append(p.Steps, Step{
				Kind:             StepPlaceholder,
				PlaceholderField: f,
				PlaceholderWidth: width,
			})
			continue
		}
		p.Steps = append(p.Steps, Step{Kind: StepField, Field: f})
	}
	for _, f := range patchOrder {
		p.Steps = append(p.Steps, Step{Kind: StepPatch, PatchField: f})
	}

	return p, nil
}

func isComputed(f *schema.Field) bool {
	return f.Computed != nil || f.Kind == schema.FieldCRC
}

// placeholderWidth returns how many bytes a computed field's placeholder
// reserves, which must be a fixed byte-alignable width since a patch
// back-fills it after the fact via bitio.Writer.Patch*.
func placeholderWidth(f *schema.Field) (int, error) {
	switch f.Kind {
	case schema.FieldInt:
		return f.Int.Width / 8, nil
	case schema.FieldCRC:
		return f.CRC.Width / 8, nil
	default:
		return 0, fmt.Errorf("computed fields must be fixed-width ints or crc fields, got kind %v", f.Kind)
	}
}

// dependsOn returns the field name f's patch must run after, or "" if it
// has no computed dependency.
func dependsOn(f *schema.Field) string {
	if f.Computed != nil && f.Computed.FromAfterField != "" {
		return f.Computed.FromAfterField
	}
	if f.Kind == schema.FieldCRC && f.CRC.AfterField != "" {
		return f.CRC.AfterField
	}
	return ""
}

// orderPatches topologically sorts computed fields so that a field
// depending on another computed field's settled byte range patches after
// it, detecting cycles along the way.
func orderPatches(fields []*schema.Field, fieldIndex map[string]int) ([]*schema.Field, error) {
	byName := make(map[string]*schema.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(fields))
	var order []*schema.Field

	var visit func(f *schema.Field) error
	visit = func(f *schema.Field) error {
		switch state[f.Name] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("cyclic computed-field dependency involving %q", f.Name)
		}
		state[f.Name] = visiting
		if dep := dependsOn(f); dep != "" {
			if depField, ok := byName[dep]; ok {
				if err := visit(depField); err != nil {
					return err
				}
			} else if _, ok := fieldIndex[dep]; !ok {
				return fmt.Errorf("field %q depends on unknown field %q", f.Name, dep)
			}
		}
		state[f.Name] = visited
		order = append(order, f)
		return nil
	}

	for _, f := range fields {
		if err := visit(f); err != nil {
			return nil, err
		}
	}
	return order, nil
}
