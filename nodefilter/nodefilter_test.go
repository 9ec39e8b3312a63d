package nodefilter

import "testing"

func TestParsePropertyInRangeMatches(t *testing.T) {
	raw := map[string]any{
		"properties": []any{
			map[string]any{"num_cpus": []any{map[string]any{"in_range": []any{1, 4}}}},
		},
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	ok, err := f.Match(&Candidate{Properties: map[string]any{"num_cpus": 4}})
	if err != nil || !ok {
		t.Fatalf("expected num_cpus=4 to match in_range [1,4], got ok=%v err=%v", ok, err)
	}

	ok, err = f.Match(&Candidate{Properties: map[string]any{"num_cpus": 8}})
	if ok || err == nil {
		t.Fatalf("expected num_cpus=8 to fail in_range [1,4], got ok=%v err=%v", ok, err)
	}
}

func TestParseMissingPropertyDoesNotMatch(t *testing.T) {
	raw := map[string]any{
		"properties": []any{
			map[string]any{"num_cpus": []any{map[string]any{"greater_or_equal": 1}}},
		},
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ok, err := f.Match(&Candidate{Properties: map[string]any{}})
	if ok || err == nil {
		t.Fatalf("expected a candidate missing the constrained property to not match")
	}
}

func TestParseCapabilityPropertyClause(t *testing.T) {
	raw := map[string]any{
		"capabilities": []any{
			map[string]any{
				"host": map[string]any{
					"properties": []any{
						map[string]any{"num_cpus": []any{map[string]any{"greater_or_equal": 2}}},
					},
				},
			},
		},
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	candidate := &Candidate{
		CapabilityProperties: map[string]map[string]any{
			"host": {"num_cpus": 2},
		},
	}
	ok, err := f.Match(candidate)
	if err != nil || !ok {
		t.Fatalf("expected host.num_cpus=2 to satisfy greater_or_equal 2, got ok=%v err=%v", ok, err)
	}

	candidate.CapabilityProperties["host"]["num_cpus"] = 1
	ok, err = f.Match(candidate)
	if ok || err == nil {
		t.Fatalf("expected host.num_cpus=1 to fail greater_or_equal 2")
	}
}

func TestParseValidValues(t *testing.T) {
	raw := map[string]any{
		"properties": []any{
			map[string]any{"os_distribution": []any{map[string]any{"valid_values": []any{"ubuntu", "centos"}}}},
		},
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ok, err := f.Match(&Candidate{Properties: map[string]any{"os_distribution": "ubuntu"}}); err != nil || !ok {
		t.Fatalf("expected ubuntu to be a valid value, got ok=%v err=%v", ok, err)
	}
	if ok, err := f.Match(&Candidate{Properties: map[string]any{"os_distribution": "debian"}}); ok || err == nil {
		t.Fatalf("expected debian to fail valid_values [ubuntu, centos]")
	}
}

// TestParseScriptMatchesViaGojq exercises the script escape hatch: a gojq
// program that inspects the resolved properties object directly.
func TestParseScriptMatchesViaGojq(t *testing.T) {
	raw := map[string]any{
		"script": ".properties.num_cpus >= 2",
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ok, err := f.Match(&Candidate{Properties: map[string]any{"num_cpus": 4}})
	if err != nil || !ok {
		t.Fatalf("expected script to match num_cpus=4, got ok=%v err=%v", ok, err)
	}
	ok, err = f.Match(&Candidate{Properties: map[string]any{"num_cpus": 1}})
	if ok || err == nil {
		t.Fatalf("expected script to reject num_cpus=1")
	}
}

func TestParseRejectsNonMappingInput(t *testing.T) {
	if _, err := Parse([]any{"not", "a", "mapping"}); err == nil {
		t.Fatalf("expected an error for a non-mapping node_filter")
	}
}

func TestParseRejectsInvalidScript(t *testing.T) {
	raw := map[string]any{"script": "["}
	if _, err := Parse(raw); err == nil {
		t.Fatalf("expected an error for an unparseable gojq script")
	}
}
