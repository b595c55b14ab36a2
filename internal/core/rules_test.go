package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		rule  *ValidationRule
		value Value
		want  string
	}{
		{"nil rule passes", nil, StringValue("anything"), ""},
		{"required empty", &ValidationRule{Required: true}, EmptyValue(), MsgRequired},
		{"required blank string", &ValidationRule{Required: true}, StringValue("   "), MsgRequired},
		{"optional empty skips type", &ValidationRule{Type: TypeNumber}, EmptyValue(), ""},
		{"optional empty skips regex", &ValidationRule{Regex: `\d+`}, StringValue(""), ""},

		{"number ok", &ValidationRule{Type: TypeNumber}, StringValue("1,200.50"), ""},
		{"number native", &ValidationRule{Type: TypeNumber}, NumberValue(3), ""},
		{"number bad", &ValidationRule{Type: TypeNumber}, StringValue("12x"), "Invalid number"},
		{"email ok", &ValidationRule{Type: TypeEmail}, StringValue("a@b.com"), ""},
		{"email bad", &ValidationRule{Type: TypeEmail}, StringValue("bad"), "Invalid email"},
		{"email rejects number", &ValidationRule{Type: TypeEmail}, NumberValue(1), "Invalid email"},
		{"date ok", &ValidationRule{Type: TypeDate}, StringValue("2024-01-31"), ""},
		{"date native", &ValidationRule{Type: TypeDate}, DateValue(time.Now()), ""},
		{"date bad", &ValidationRule{Type: TypeDate}, StringValue("2024-02-31"), "Invalid date"},
		{"boolean ok", &ValidationRule{Type: TypeBoolean}, StringValue("yes"), ""},
		{"boolean bad", &ValidationRule{Type: TypeBoolean}, StringValue("perhaps"), "Invalid boolean"},
		{"string type accepts anything", &ValidationRule{Type: TypeString}, NumberValue(5), ""},

		{"regex full match", &ValidationRule{Regex: `[A-Z]{3}`}, StringValue("ABC"), ""},
		{"regex partial match fails", &ValidationRule{Regex: `[A-Z]{3}`}, StringValue("ABCD"), MsgFormat},
		{"regex alternation anchored", &ValidationRule{Regex: `a|b`}, StringValue("ab"), MsgFormat},
		{"regex invalid pattern", &ValidationRule{Regex: `(`}, StringValue("x"), MsgFormat},

		{"min length", &ValidationRule{MinLength: ptr(3)}, StringValue("ab"), "Must be at least 3 characters"},
		{"max length", &ValidationRule{MaxLength: ptr(2)}, StringValue("abc"), "Must be at most 2 characters"},
		{"length counts runes", &ValidationRule{MaxLength: ptr(2)}, StringValue("éé"), ""},

		{"min", &ValidationRule{Min: ptr(10.0)}, StringValue("9"), "Must be at least 10"},
		{"max", &ValidationRule{Max: ptr(2.5)}, NumberValue(3), "Must be at most 2.5"},
		{"min on non-number", &ValidationRule{Min: ptr(0.0)}, StringValue("abc"), "Invalid number"},
		{"within range", &ValidationRule{Min: ptr(1.0), Max: ptr(5.0)}, StringValue("5"), ""},

		{"type before regex", &ValidationRule{Type: TypeNumber, Regex: `\d`}, StringValue("x"), "Invalid number"},
		{"regex before length", &ValidationRule{Regex: `\d+`, MinLength: ptr(5)}, StringValue("ab"), MsgFormat},
		{"length before range", &ValidationRule{MaxLength: ptr(1), Max: ptr(1.0)}, StringValue("10"), "Must be at most 1 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.rule, tt.value, Row{}); got != tt.want {
				t.Errorf("Evaluate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Custom(t *testing.T) {
	RegisterValidator("test_upper", func(v Value, _ Row) (string, error) {
		if strings.ToUpper(v.Text()) != v.Text() {
			return "Must be upper case", nil
		}
		return "", nil
	})
	RegisterValidator("test_matches_other", func(v Value, row Row) (string, error) {
		other, _ := row.Get("other")
		if other.Text() != v.Text() {
			return "Must match other", nil
		}
		return "", nil
	})
	RegisterValidator("test_errors", func(Value, Row) (string, error) {
		return "", errors.New("lookup table unavailable")
	})
	RegisterValidator("test_panics", func(Value, Row) (string, error) {
		panic("boom")
	})
	t.Cleanup(func() {
		for _, n := range []string{"test_upper", "test_matches_other", "test_errors", "test_panics"} {
			unregisterValidator(n)
		}
	})

	row := RowOf("other", "SAME")

	tests := []struct {
		name   string
		custom string
		value  Value
		want   string
	}{
		{"passes", "test_upper", StringValue("ABC"), ""},
		{"fails with own message", "test_upper", StringValue("abc"), "Must be upper case"},
		{"sees whole row", "test_matches_other", StringValue("SAME"), ""},
		{"row mismatch", "test_matches_other", StringValue("DIFF"), "Must match other"},
		{"error becomes generic failure", "test_errors", StringValue("x"), MsgCustomDefect},
		{"panic becomes generic failure", "test_panics", StringValue("x"), MsgCustomDefect},
		{"unknown name", "test_missing", StringValue("x"), MsgCustomDefect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &ValidationRule{Custom: tt.custom}
			if got := Evaluate(rule, tt.value, row); got != tt.want {
				t.Errorf("Evaluate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluate_CustomSkippedWhenEarlierCheckFails(t *testing.T) {
	called := false
	RegisterValidator("test_called", func(Value, Row) (string, error) {
		called = true
		return "", nil
	})
	t.Cleanup(func() { unregisterValidator("test_called") })

	rule := &ValidationRule{Type: TypeNumber, Custom: "test_called"}
	if got := Evaluate(rule, StringValue("nope"), Row{}); got != "Invalid number" {
		t.Fatalf("Evaluate() = %q", got)
	}
	if called {
		t.Error("custom validator ran after type check failed")
	}
}

func TestRegisterValidator_Panics(t *testing.T) {
	RegisterValidator("test_dup", func(Value, Row) (string, error) { return "", nil })
	t.Cleanup(func() { unregisterValidator("test_dup") })

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	RegisterValidator("test_dup", func(Value, Row) (string, error) { return "", nil })
}
