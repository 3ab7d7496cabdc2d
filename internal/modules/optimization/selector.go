package optimization

// SelectMaxSharpe returns the index of the sample with the highest finite
// Sharpe ratio. Ties keep the earliest sample.
func SelectMaxSharpe(samples []PortfolioSample) (int, bool) {
	best := -1
	for i := range samples {
		sr := samples[i].SharpeRatio
		if !isFinite(sr) {
			continue
		}
		if best < 0 || sr > samples[best].SharpeRatio {
			best = i
		}
	}
	return best, best >= 0
}

// SelectMinVariance returns the index of the sample with the lowest finite
// risk. Ties keep the earliest sample.
func SelectMinVariance(samples []PortfolioSample) (int, bool) {
	best := -1
	for i := range samples {
		risk := samples[i].Risk
		if !isFinite(risk) {
			continue
		}
		if best < 0 || risk < samples[best].Risk {
			best = i
		}
	}
	return best, best >= 0
}

// SelectConstrained returns the max-Sharpe sample among those whose weights
// all satisfy c. false means no sample qualified and the caller should fall
// back to the unconstrained optimum.
func SelectConstrained(samples []PortfolioSample, c Constraints) (int, bool) {
	best := -1
	for i := range samples {
		sr := samples[i].SharpeRatio
		if !isFinite(sr) || !c.Allows(samples[i].Weights) {
			continue
		}
		if best < 0 || sr > samples[best].SharpeRatio {
			best = i
		}
	}
	return best, best >= 0
}
