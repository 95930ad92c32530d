package stats

import "math"

// Comparison is the non-simplified read on the same raw counts: a
// two-proportion z-test between the leading variant and the control, plus
// Wilson score intervals per variant (fractions, not percentages).
type Comparison struct {
	ControlVariantID string          `json:"controlVariantId"`
	LeadingVariantID string          `json:"leadingVariantId"`
	ConfidenceLevel  float64         `json:"confidenceLevel"`
	Confident        bool            `json:"confident"`
	WilsonIntervals  []WilsonVariant `json:"wilsonIntervals"`
}

type WilsonVariant struct {
	VariantID string  `json:"variantId"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

func compare(variants []VariantResult) *Comparison {
	if len(variants) < 2 {
		return nil
	}

	leading := 0
	for i := 1; i < len(variants); i++ {
		if variants[i].ConversionRate > variants[leading].ConversionRate {
			leading = i
		}
	}

	var confidence float64
	if leading == 0 {
		// Control is leading; test it against the best challenger.
		challenger := 1
		for i := 2; i < len(variants); i++ {
			if variants[i].ConversionRate > variants[challenger].ConversionRate {
				challenger = i
			}
		}
		confidence = SignificanceTest(
			variants[0].Conversions, variants[0].Participants,
			variants[challenger].Conversions, variants[challenger].Participants,
		)
	} else {
		confidence = SignificanceTest(
			variants[leading].Conversions, variants[leading].Participants,
			variants[0].Conversions, variants[0].Participants,
		)
	}

	intervals := make([]WilsonVariant, len(variants))
	for i, v := range variants {
		lower, upper := WilsonInterval(v.Conversions, v.Participants, 0.95)
		intervals[i] = WilsonVariant{VariantID: v.VariantID, Lower: lower, Upper: upper}
	}

	return &Comparison{
		ControlVariantID: variants[0].VariantID,
		LeadingVariantID: variants[leading].VariantID,
		ConfidenceLevel:  confidence,
		Confident:        confidence >= 0.95,
		WilsonIntervals:  intervals,
	}
}

// SignificanceTest performs a two-proportion z-test. Returns the confidence
// level (0-1) that variant A beats variant B.
func SignificanceTest(aConv, aParticipants, bConv, bParticipants int) float64 {
	// Need data from both variants to say anything.
	if aParticipants == 0 || bParticipants == 0 {
		return 0.5
	}

	pA := float64(aConv) / float64(aParticipants)
	pB := float64(bConv) / float64(bParticipants)

	// Pooled proportion under the null hypothesis (pA = pB)
	pooledP := float64(aConv+bConv) / float64(aParticipants+bParticipants)

	se := math.Sqrt(pooledP * (1 - pooledP) * (1/float64(aParticipants) + 1/float64(bParticipants)))
	if se == 0 {
		if pA > pB {
			return 1.0
		} else if pA < pB {
			return 0.0
		}
		return 0.5
	}

	z := (pA - pB) / se

	// P(Z < z) is the confidence that A > B.
	return normalCDF(z)
}

// normalCDF approximates the cumulative distribution function of the
// standard normal distribution using Abramowitz and Stegun formula 7.1.26.
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
