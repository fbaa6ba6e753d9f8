package rules

import (
	"strings"
	"testing"
)

func testContext() Context {
	return Context{
		"risk_score":       Number(80),
		"temperature":      Number(35),
		"humidity":         Number(20),
		"smoke_level":      Number(3000),
		"rain_level":       Number(0),
		"temp_change_rate": Number(6),
		"node_offline":     Bool(false),
		"sprinkler_status": String("off"),
		"hotspot_distance": Number(999),
	}
}

func TestConditionEval(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{"risk_score >= 75", true},
		{"risk_score >= 90", false},
		{"smoke_level >= 2500", true},
		{"risk_score >= 60 and risk_score < 75", false},
		{"temperature > 30 and humidity < 25", true},
		{"temp_change_rate > 5", true},
		{"sprinkler_status == 'on'", false},
		{"sprinkler_status != 'on'", true},
		{"node_offline == true", false},
		{"node_offline", false},
		{"not node_offline", true},
		{"hotspot_distance < 10", false},
		{"risk_score >= 90 or smoke_level >= 2500", true},
		{"(risk_score >= 90 or smoke_level >= 2500) and rain_level == 0", true},
		{"rain_level != 0 or temperature >= 35", true},
		{`sprinkler_status == "off"`, true},
	}

	ctx := testContext()
	for _, tc := range cases {
		cond, err := Parse(tc.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.expr, err)
		}
		got, err := cond.Eval(ctx)
		if err != nil {
			t.Fatalf("Eval(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Errorf("Eval(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestConditionPrecedence(t *testing.T) {
	// "and" binds tighter than "or": a or b and c == a or (b and c).
	ctx := Context{
		"a": Bool(true),
		"b": Bool(false),
		"c": Bool(false),
	}
	cond := MustParse("a or b and c")
	got, err := cond.Eval(ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !got {
		t.Error("a or (b and c) with a=true should be true")
	}
}

func TestConditionShortCircuit(t *testing.T) {
	// The right side references an unknown variable; short-circuiting
	// means it is never evaluated.
	ctx := Context{"risk_score": Number(10)}

	cond := MustParse("risk_score < 50 or bogus_variable > 1")
	got, err := cond.Eval(ctx)
	if err != nil {
		t.Fatalf("or short-circuit: %v", err)
	}
	if !got {
		t.Error("or short-circuit: want true")
	}

	cond = MustParse("risk_score > 50 and bogus_variable > 1")
	got, err = cond.Eval(ctx)
	if err != nil {
		t.Fatalf("and short-circuit: %v", err)
	}
	if got {
		t.Error("and short-circuit: want false")
	}
}

func TestConditionParseErrors(t *testing.T) {
	exprs := []string{
		"",
		"risk_score >",
		"risk_score = 75",
		"risk_score >= 75 extra",
		"(risk_score >= 75",
		"'unterminated",
		"risk_score >= 75 and",
		"@invalid",
	}
	for _, expr := range exprs {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", expr)
		}
	}
}

func TestConditionEvalErrors(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		expr    string
		wantErr string
	}{
		{"unknown_var > 1", "unknown variable"},
		{"risk_score == 'high'", "cannot compare"},
		{"sprinkler_status > 'on'", "not defined for strings"},
		{"risk_score", "expected boolean"},
	}
	for _, tc := range tests {
		cond, err := Parse(tc.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.expr, err)
		}
		if _, err := cond.Eval(ctx); err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("Eval(%q) error = %v, want containing %q", tc.expr, err, tc.wantErr)
		}
	}
}

func TestDefaultRuleConditionsParse(t *testing.T) {
	for _, rule := range DefaultRules(75, 2500) {
		if _, err := Parse(rule.Condition); err != nil {
			t.Errorf("default rule %s has unparseable condition: %v", rule.ID, err)
		}
	}
}
