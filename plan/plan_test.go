package plan

import (
	"testing"

	"github.com/binschema/binschema/schema"
)

func mustParse(t *testing.T, doc string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("schema.Parse() error: %v", err)
	}
	if err := schema.Validate(s); err != nil {
		t.Fatalf("schema.Validate() error: %v", err)
	}
	return s
}

func TestBuildOrdersFieldsThenPatches(t *testing.T) {
	s := mustParse(t, `
types:
  - name: Msg
    kind: sequence
    fields:
      - name: length
        kind: int
        width: 16
        computed:
          kind: length_of
          target: payload
      - name: payload
        kind: array
        length_kind: fixed
        length: 4
        item: {kind: int, width: 8}
`)
	p, err := Build(s, "Msg")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(p.Steps) != 3 {
		t.Fatalf("got %d steps, want 3 (placeholder, payload field, patch)", len(p.Steps))
	}
	if p.Steps[0].Kind != StepPlaceholder || p.Steps[0].PlaceholderField.Name != "length" {
		t.Errorf("step 0 = %+v, want placeholder for length", p.Steps[0])
	}
	if p.Steps[1].Kind != StepField || p.Steps[1].Field.Name != "payload" {
		t.Errorf("step 1 = %+v, want field payload", p.Steps[1])
	}
	if p.Steps[2].Kind != StepPatch || p.Steps[2].PatchField.Name != "length" {
		t.Errorf("step 2 = %+v, want patch for length", p.Steps[2])
	}
}

func TestBuildOrdersDependentPatches(t *testing.T) {
	s := mustParse(t, `
types:
  - name: Frame
    kind: sequence
    fields:
      - name: length
        kind: int
        width: 16
        computed: {kind: length_of, target: payload}
      - name: payload
        kind: array
        length_kind: fixed
        length: 2
        item: {kind: int, width: 8}
      - name: checksum
        kind: crc
        width: 32
        covers: from_after_field
        after_field: length
`)
	p, err := Build(s, "Frame")
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	var patchOrder []string
	for _, step := range p.Steps {
		if step.Kind == StepPatch {
			patchOrder = append(patchOrder, step.PatchField.Name)
		}
	}
	if len(patchOrder) != 2 || patchOrder[0] != "length" || patchOrder[1] != "checksum" {
		t.Errorf("patch order = %v, want [length checksum]", patchOrder)
	}
}

func TestBuildRejectsCycle(t *testing.T) {
	// Deliberately ill-formed (the validator rejects it too); Build must
	// still detect the cycle on its own since it is a separate entry point.
	s, err := schema.Parse([]byte(`
types:
  - name: A
    kind: sequence
    fields:
      - name: x
        kind: int
        width: 16
        computed: {kind: length_of, target: y, from_after_field: y}
      - name: y
        kind: int
        width: 16
        computed: {kind: length_of, target: x, from_after_field: x}
`))
	if err != nil {
		t.Fatalf("schema.Parse() error: %v", err)
	}
	if _, err := Build(s, "A"); err == nil {
		t.Fatal("expected cyclic dependency error")
	}
}

func TestBuildRejectsUnknownType(t *testing.T) {
	s := mustParse(t, `
types:
  - name: T
    kind: sequence
    fields: []
`)
	if _, err := Build(s, "Missing"); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
