package stats

import "testing"

func TestWilsonInterval(t *testing.T) {
	// 50 conversions out of 100 trials at 95% confidence.
	lower, upper := WilsonInterval(50, 100, 0.95)

	if lower < 0.38 || lower > 0.42 {
		t.Errorf("lower bound %v outside expected range [0.38, 0.42]", lower)
	}
	if upper < 0.58 || upper > 0.62 {
		t.Errorf("upper bound %v outside expected range [0.58, 0.62]", upper)
	}
	if lower >= upper {
		t.Errorf("lower bound %v should be below upper bound %v", lower, upper)
	}
}

func TestWilsonIntervalZeroTrials(t *testing.T) {
	lower, upper := WilsonInterval(0, 0, 0.95)
	if lower != 0 || upper != 0 {
		t.Errorf("expected [0, 0] for zero trials, got [%v, %v]", lower, upper)
	}
}

func TestWilsonIntervalExtremes(t *testing.T) {
	lower, upper := WilsonInterval(0, 100, 0.95)
	if lower > 1e-9 {
		t.Errorf("zero successes should pin lower bound to 0, got %v", lower)
	}
	if upper <= 0 || upper > 0.1 {
		t.Errorf("zero successes upper bound %v outside (0, 0.1]", upper)
	}

	lower, upper = WilsonInterval(100, 100, 0.95)
	if upper < 1-1e-9 {
		t.Errorf("all successes should pin upper bound to 1, got %v", upper)
	}
	if lower < 0.9 || lower >= 1 {
		t.Errorf("all successes lower bound %v outside [0.9, 1)", lower)
	}
}

func TestWilsonIntervalNarrowsWithTrials(t *testing.T) {
	smallLower, smallUpper := WilsonInterval(5, 10, 0.95)
	largeLower, largeUpper := WilsonInterval(500, 1000, 0.95)

	if (largeUpper - largeLower) >= (smallUpper - smallLower) {
		t.Errorf("interval should narrow with more trials: small [%v, %v], large [%v, %v]",
			smallLower, smallUpper, largeLower, largeUpper)
	}
}

func TestWilsonIntervalConfidenceWidens(t *testing.T) {
	lo95, hi95 := WilsonInterval(50, 100, 0.95)
	lo99, hi99 := WilsonInterval(50, 100, 0.99)

	if (hi99 - lo99) <= (hi95 - lo95) {
		t.Errorf("99%% interval should be wider than 95%%: [%v, %v] vs [%v, %v]",
			lo99, hi99, lo95, hi95)
	}
}
