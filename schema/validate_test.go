package schema

import "testing"

func mustParse(t *testing.T, doc string) *Schema {
	t.Helper()
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return s
}

func TestValidateGoodSchema(t *testing.T) {
	s := mustParse(t, `
types:
  - name: Point
    kind: sequence
    fields:
      - name: x
        kind: int
        width: 32
        signed: true
      - name: y
        kind: int
        width: 32
        signed: true
`)
	if err := Validate(s); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsBadIntWidth(t *testing.T) {
	s := mustParse(t, `
types:
  - name: Bad
    kind: sequence
    fields:
      - name: x
        kind: int
        width: 24
`)
	err := Validate(s)
	if err == nil {
		t.Fatal("expected validation error for width=24")
	}
}

func TestValidateRejectsUnknownTypeRef(t *testing.T) {
	s := mustParse(t, `
types:
  - name: Outer
    kind: sequence
    fields:
      - name: inner
        kind: type_ref
        type: DoesNotExist
`)
	if err := Validate(s); err == nil {
		t.Fatal("expected validation error for unresolved type_ref")
	}
}

func TestValidateRejectsDuplicateFieldNames(t *testing.T) {
	s := mustParse(t, `
types:
  - name: T
    kind: sequence
    fields:
      - name: a
        kind: int
        width: 8
      - name: a
        kind: int
        width: 8
`)
	if err := Validate(s); err == nil {
		t.Fatal("expected validation error for duplicate field name")
	}
}

func TestValidateRejectsConstAndComputedTogether(t *testing.T) {
	s := mustParse(t, `
types:
  - name: T
    kind: sequence
    fields:
      - name: a
        kind: int
        width: 8
      - name: len
        kind: int
        width: 8
        const: 1
        computed:
          kind: length_of
          target: a
`)
	if err := Validate(s); err == nil {
		t.Fatal("expected validation error for const+computed on same field")
	}
}

func TestValidateRejectsEmptyUnion(t *testing.T) {
	s := mustParse(t, `
types:
  - name: Msg
    kind: union
    discriminator:
      kind: peek
      peek_width: 8
    variants: []
`)
	if err := Validate(s); err == nil {
		t.Fatal("expected validation error for union with no variants")
	}
}

func TestValidateRejectsBadAlignment(t *testing.T) {
	s := mustParse(t, `
types:
  - name: Target
    kind: sequence
    fields: []
  - name: Container
    kind: sequence
    fields: []
    instances:
      - name: footer
        target_type: Target
        position: {kind: literal, value: 0}
        alignment: 3
`)
	if err := Validate(s); err == nil {
		t.Fatal("expected validation error for non-power-of-two alignment")
	}
}

func TestValidateAcceptsValidInstance(t *testing.T) {
	s := mustParse(t, `
types:
  - name: Target
    kind: sequence
    fields: []
  - name: Container
    kind: sequence
    fields: []
    instances:
      - name: footer
        target_type: Target
        position: {kind: from_end, value: 4}
`)
	if err := Validate(s); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsContentBetweenAnchorAndComputed(t *testing.T) {
	s := mustParse(t, `
types:
  - name: T
    kind: sequence
    fields:
      - name: header
        kind: int
        width: 8
      - name: stray
        kind: int
        width: 8
      - name: body_length
        kind: int
        width: 16
        computed: {kind: length_of, target: body, from_after_field: header}
      - name: body
        kind: array
        length_kind: fixed
        length: 2
        item: {kind: int, width: 8}
`)
	if err := Validate(s); err == nil {
		t.Fatal("expected validation error for content field between from_after_field anchor and computed field")
	}
}

func TestValidateAcceptsAdjacentFromAfterField(t *testing.T) {
	s := mustParse(t, `
types:
  - name: T
    kind: sequence
    fields:
      - name: header
        kind: int
        width: 8
      - name: body_length
        kind: int
        width: 16
        computed: {kind: length_of, target: body, from_after_field: header}
      - name: body
        kind: array
        length_kind: fixed
        length: 2
        item: {kind: int, width: 8}
`)
	if err := Validate(s); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsUnknownComputedTarget(t *testing.T) {
	s := mustParse(t, `
types:
  - name: T
    kind: sequence
    fields:
      - name: length
        kind: int
        width: 8
        computed: {kind: length_of, target: nothing}
`)
	if err := Validate(s); err == nil {
		t.Fatal("expected validation error for unknown computed target")
	}
}

func TestValidateRejectsOverlongStringConst(t *testing.T) {
	s := mustParse(t, `
types:
  - name: T
    kind: sequence
    fields:
      - name: magic
        kind: string
        length_kind: fixed
        length: 2
        const: TOOLONG
`)
	if err := Validate(s); err == nil {
		t.Fatal("expected validation error for const longer than the declared string length")
	}
}
