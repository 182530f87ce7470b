package domain

// BasisPointsDenominator is 100% expressed in basis points.
const BasisPointsDenominator = 10000

// ApplyBasisPoints returns amount × bps / 10000 rounded half up. Negative amounts round half away from zero.
func ApplyBasisPoints(amount int64, bps int64) int64 {
	return divRoundHalfUp(amount*bps, BasisPointsDenominator)
}

// Prorate returns amount × numerator / denominator rounded half up.
func Prorate(amount int64, numerator int64, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	return divRoundHalfUp(amount*numerator, denominator)
}

func divRoundHalfUp(value int64, divisor int64) int64 {
	if divisor < 0 {
		value, divisor = -value, -divisor
	}
	if value >= 0 {
		return (value + divisor/2) / divisor
	}
	return -((-value + divisor/2) / divisor)
}
