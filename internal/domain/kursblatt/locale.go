package kursblatt

import (
	"fmt"
	"strings"
)

// Locale is the decimal separator convention of a report.
type Locale int

const (
	LocaleUndetermined  Locale = iota
	LocaleCommaDecimal         // 1.234,50
	LocalePeriodDecimal        // 1,234.50
)

func (l Locale) String() string {
	switch l {
	case LocaleCommaDecimal:
		return "DE"
	case LocalePeriodDecimal:
		return "US"
	default:
		return "undetermined"
	}
}

// LocaleStrategy decides the locale from the price token of the first trade row.
type LocaleStrategy int

const (
	// LocaleStrategySeparatorPosition looks at both separators: the right-most one present is
	// the decimal separator. A lone separator followed by exactly three digits is ambiguous and
	// falls back to the fourth-from-last rule, so three-decimal prices resolve the same way
	// under both strategies.
	LocaleStrategySeparatorPosition LocaleStrategy = iota

	// LocaleStrategyFourthFromLast treats the token as comma-decimal when its fourth-from-last
	// character is a comma. It assumes prices printed with three fractional digits.
	LocaleStrategyFourthFromLast
)

// DefaultLocaleStrategy is used when no strategy is configured.
const DefaultLocaleStrategy = LocaleStrategySeparatorPosition

// ParseLocaleStrategy maps a config value to a strategy.
func ParseLocaleStrategy(s string) (LocaleStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultLocaleStrategy, nil
	case "separator-position":
		return LocaleStrategySeparatorPosition, nil
	case "fourth-from-last":
		return LocaleStrategyFourthFromLast, nil
	default:
		return 0, fmt.Errorf("unknown locale strategy %q", s)
	}
}

func (s LocaleStrategy) String() string {
	if s == LocaleStrategyFourthFromLast {
		return "fourth-from-last"
	}
	return "separator-position"
}

// DetectLocale applies the default strategy to a raw price token.
func DetectLocale(token string) (Locale, error) {
	return DefaultLocaleStrategy.Detect(token)
}

// Detect decides the locale of a raw price token.
func (s LocaleStrategy) Detect(token string) (Locale, error) {
	if s == LocaleStrategySeparatorPosition {
		if l, ok := bySeparatorPosition(token); ok {
			return l, nil
		}
	}
	return fourthFromLast(token)
}

func fourthFromLast(token string) (Locale, error) {
	if len(token) < 4 {
		return LocaleUndetermined, fmt.Errorf("%w: token %q too short", ErrLocaleUnresolved, token)
	}
	if token[len(token)-4] == ',' {
		return LocaleCommaDecimal, nil
	}
	return LocalePeriodDecimal, nil
}

func bySeparatorPosition(token string) (Locale, bool) {
	token = strings.TrimSpace(token)
	comma := strings.LastIndexByte(token, ',')
	dot := strings.LastIndexByte(token, '.')

	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			return LocaleCommaDecimal, true
		}
		return LocalePeriodDecimal, true
	case comma >= 0:
		if len(token)-comma-1 == 3 {
			return LocaleUndetermined, false
		}
		return LocaleCommaDecimal, true
	case dot >= 0:
		if len(token)-dot-1 == 3 {
			return LocaleUndetermined, false
		}
		return LocalePeriodDecimal, true
	}
	return LocaleUndetermined, false
}
