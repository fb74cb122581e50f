package measurement

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Verdict is the classifier outcome attached to a measurement.
type Verdict string

const (
	Pass Verdict = "Pass"
	Fail Verdict = "Fail"
)

// ParseVerdict accepts "Pass" or "Fail" in any casing.
func ParseVerdict(value string) (Verdict, bool) {
	switch Verdict(cases.Title(language.Und).String(strings.TrimSpace(value))) {
	case Pass:
		return Pass, true
	case Fail:
		return Fail, true
	default:
		return "", false
	}
}

// IsDefect reports whether the verdict counts toward the defect rate.
func (v Verdict) IsDefect() bool {
	return v == Fail
}

func (v Verdict) String() string {
	return string(v)
}
