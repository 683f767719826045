package kursblatt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocaleStrategy_Detect(t *testing.T) {
	tests := []struct {
		name     string
		strategy LocaleStrategy
		token    string
		want     Locale
	}{
		{"fourth-from-last comma", LocaleStrategyFourthFromLast, "12,500", LocaleCommaDecimal},
		{"fourth-from-last grouped comma decimal", LocaleStrategyFourthFromLast, "1.234,500", LocaleCommaDecimal},
		{"fourth-from-last period", LocaleStrategyFourthFromLast, "12.500", LocalePeriodDecimal},
		{"fourth-from-last grouped period decimal", LocaleStrategyFourthFromLast, "1,234.500", LocalePeriodDecimal},
		{"fourth-from-last two decimals", LocaleStrategyFourthFromLast, "10,50", LocalePeriodDecimal},
		{"separator both present comma last", LocaleStrategySeparatorPosition, "1.234,50", LocaleCommaDecimal},
		{"separator both present period last", LocaleStrategySeparatorPosition, "1,234.50", LocalePeriodDecimal},
		{"separator lone comma", LocaleStrategySeparatorPosition, "5,00", LocaleCommaDecimal},
		{"separator lone period", LocaleStrategySeparatorPosition, "5.00", LocalePeriodDecimal},
		{"separator ambiguous comma falls back", LocaleStrategySeparatorPosition, "12,500", LocaleCommaDecimal},
		{"separator ambiguous period falls back", LocaleStrategySeparatorPosition, "12.500", LocalePeriodDecimal},
		{"separator none falls back", LocaleStrategySeparatorPosition, "1234", LocalePeriodDecimal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.strategy.Detect(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocaleStrategy_DetectShortToken(t *testing.T) {
	for _, s := range []LocaleStrategy{LocaleStrategyFourthFromLast, LocaleStrategySeparatorPosition} {
		t.Run(s.String(), func(t *testing.T) {
			l, err := s.Detect("12")
			assert.ErrorIs(t, err, ErrLocaleUnresolved)
			assert.Equal(t, LocaleUndetermined, l)
		})
	}
}

func TestLocaleStrategies_AgreeOnThreeDecimalPrices(t *testing.T) {
	for _, token := range []string{"0,125", "12,500", "1.234,500", "0.125", "12.500", "1,234.500"} {
		strict, err := LocaleStrategyFourthFromLast.Detect(token)
		require.NoError(t, err)
		relaxed, err := LocaleStrategySeparatorPosition.Detect(token)
		require.NoError(t, err)
		assert.Equal(t, strict, relaxed, token)
	}
}

func TestDetectLocale_UsesDefault(t *testing.T) {
	l, err := DetectLocale("5,00")
	require.NoError(t, err)
	assert.Equal(t, LocaleCommaDecimal, l)
}

func TestParseLocaleStrategy(t *testing.T) {
	t.Run("known values", func(t *testing.T) {
		s, err := ParseLocaleStrategy("")
		require.NoError(t, err)
		assert.Equal(t, DefaultLocaleStrategy, s)

		s, err = ParseLocaleStrategy(" Fourth-From-Last ")
		require.NoError(t, err)
		assert.Equal(t, LocaleStrategyFourthFromLast, s)

		s, err = ParseLocaleStrategy("separator-position")
		require.NoError(t, err)
		assert.Equal(t, LocaleStrategySeparatorPosition, s)
	})

	t.Run("unknown value", func(t *testing.T) {
		_, err := ParseLocaleStrategy("guess")
		assert.Error(t, err)
	})
}

func TestLocale_String(t *testing.T) {
	assert.Equal(t, "DE", LocaleCommaDecimal.String())
	assert.Equal(t, "US", LocalePeriodDecimal.String())
	assert.Equal(t, "undetermined", LocaleUndetermined.String())
}
