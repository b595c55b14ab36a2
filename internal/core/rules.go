package core

// rules.go evaluates a single ValidationRule against a single value.
//
// Checks run in a fixed order and the first failure wins:
//  1. required
//  2. type (number, email, date, boolean)
//  3. regex (full match)
//  4. minLength / maxLength
//  5. min / max
//  6. custom validator
//
// An empty optional value passes without running the remaining checks.

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"unicode/utf8"
)

// Messages reported by Evaluate.
const (
	MsgRequired       = "Field is required"
	MsgFormat         = "Value does not match required format"
	MsgCustomDefect   = "Custom validation failed"
	msgInvalidTypeFmt = "Invalid %s"
)

// regexCache holds compiled patterns keyed by source. Patterns are anchored
// so that they must match the whole value.
var regexCache sync.Map

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// Evaluate checks value against rule and returns an error message, or ""
// when the value passes. A nil rule always passes. Evaluate has no side
// effects beyond caching compiled patterns.
func Evaluate(rule *ValidationRule, value Value, row Row) string {
	if rule == nil {
		return ""
	}

	if value.IsEmpty() {
		if rule.Required {
			return MsgRequired
		}
		return ""
	}

	if msg := checkType(rule.Type, value); msg != "" {
		return msg
	}

	text := value.Text()

	if rule.Regex != "" {
		re, err := compileAnchored(rule.Regex)
		if err != nil || !re.MatchString(text) {
			return MsgFormat
		}
	}

	length := utf8.RuneCountInString(text)
	if rule.MinLength != nil && length < *rule.MinLength {
		return fmt.Sprintf("Must be at least %d characters", *rule.MinLength)
	}
	if rule.MaxLength != nil && length > *rule.MaxLength {
		return fmt.Sprintf("Must be at most %d characters", *rule.MaxLength)
	}

	if rule.Min != nil || rule.Max != nil {
		n, ok := value.Number()
		if !ok {
			return fmt.Sprintf(msgInvalidTypeFmt, TypeNumber)
		}
		if rule.Min != nil && n < *rule.Min {
			return "Must be at least " + formatBound(*rule.Min)
		}
		if rule.Max != nil && n > *rule.Max {
			return "Must be at most " + formatBound(*rule.Max)
		}
	}

	if rule.Custom != "" {
		return runCustom(rule.Custom, value, row)
	}

	return ""
}

// checkType returns "Invalid {type}" when value does not have the shape
// declared by t.
func checkType(t FieldType, value Value) string {
	var ok bool
	switch t {
	case TypeNumber:
		_, ok = value.Number()
	case TypeEmail:
		ok = value.Kind() == KindString && IsEmail(value.Text())
	case TypeDate:
		_, ok = value.Date()
	case TypeBoolean:
		_, ok = value.Bool()
	default:
		return ""
	}
	if ok {
		return ""
	}
	return fmt.Sprintf(msgInvalidTypeFmt, t)
}

// runCustom invokes a registered validator. Unknown names, returned errors
// and panics all yield MsgCustomDefect so one defective rule cannot abort
// the batch.
func runCustom(name string, value Value, row Row) (msg string) {
	fn, ok := LookupValidator(name)
	if !ok {
		return MsgCustomDefect
	}

	defer func() {
		if r := recover(); r != nil {
			msg = MsgCustomDefect
		}
	}()

	out, err := fn(value, row)
	if err != nil {
		return MsgCustomDefect
	}
	return out
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
