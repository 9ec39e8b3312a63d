package scalarunit

import "testing"

func TestParseRoundTrip(t *testing.T) {
	v, err := Parse("10 GB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Base != 10_000_000_000 {
		t.Errorf("expected base 10e9 bytes, got %v", v.Base)
	}
	if got := v.String(); got != "10 GB" {
		t.Errorf("expected round trip \"10 GB\", got %q", got)
	}
}

func TestParseNoWhitespace(t *testing.T) {
	v, err := Parse("500ms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Base != 0.5 {
		t.Errorf("expected 0.5s base, got %v", v.Base)
	}
}

func TestParseBinaryVsSI(t *testing.T) {
	si, err := Parse("1 KB")
	if err == nil {
		// "KB" is not a recognized spelling (only "kB"); case-insensitive
		// fallback will still resolve it, but it must not silently become KiB.
		if si.Base != 1000 {
			t.Errorf("expected SI kB fallback to use 1000 multiplier, got %v", si.Base)
		}
	}

	kib, err := Parse("1 KiB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kib.Base != 1024 {
		t.Errorf("expected 1 KiB = 1024 bytes, got %v", kib.Base)
	}
}

func TestParseUnrecognizedUnit(t *testing.T) {
	if _, err := Parse("10 XB"); err == nil {
		t.Fatal("expected error for unrecognized unit")
	}
}

func TestCompareMismatchedKind(t *testing.T) {
	a, _ := Parse("1 GB")
	b, _ := Parse("1 s")
	if _, err := Compare(a, b); err == nil {
		t.Fatal("expected type error comparing size to time")
	}
}

func TestEvaluateInRange(t *testing.T) {
	clause := Clause{Op: OpInRange, Args: []any{1.0, 4.0}}
	if err := Evaluate(clause, 2.0); err != nil {
		t.Errorf("expected 2 to satisfy in_range [1,4]: %v", err)
	}
	if err := Evaluate(clause, 5.0); err == nil {
		t.Error("expected 5 to violate in_range [1,4]")
	}
}

func TestEvaluateInRangeUnboundedUpper(t *testing.T) {
	clause := Clause{Op: OpInRange, Args: []any{1.0, Unbounded}}
	if err := Evaluate(clause, 1_000_000.0); err != nil {
		t.Errorf("expected unbounded upper to allow large values: %v", err)
	}
}

func TestEvaluateValidValues(t *testing.T) {
	clause := Clause{Op: OpValidValues, Args: []any{1.0, 2.0, 4.0, 8.0}}
	if err := Evaluate(clause, 3.0); err == nil {
		t.Error("expected 3 to violate valid_values [1,2,4,8]")
	}
	if err := Evaluate(clause, 4.0); err != nil {
		t.Errorf("expected 4 to satisfy valid_values [1,2,4,8]: %v", err)
	}
}

func TestEvaluatePatternAnchored(t *testing.T) {
	clause := Clause{Op: OpPattern, Args: []any{"[a-z]+"}}
	if err := Evaluate(clause, "abc123"); err == nil {
		t.Error("expected anchored pattern to reject trailing digits")
	}
	if err := Evaluate(clause, "abc"); err != nil {
		t.Errorf("expected \"abc\" to match ^[a-z]+$: %v", err)
	}
}

func TestEvaluateScalarUnitCompare(t *testing.T) {
	mem, _ := Parse("4 MB")
	clause := Clause{Op: OpGreaterOrEqual, Args: []any{mem}}
	bigger, _ := Parse("8 MB")
	if err := Evaluate(clause, bigger); err != nil {
		t.Errorf("expected 8 MB >= 4 MB: %v", err)
	}
	smaller, _ := Parse("2 MB")
	if err := Evaluate(clause, smaller); err == nil {
		t.Error("expected 2 MB < 4 MB to violate greater_or_equal")
	}
}
