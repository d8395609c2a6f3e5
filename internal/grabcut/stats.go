package grabcut

// emptyClassCost is the data cost charged against a class with no pixels.
// It equals a pixel three standard deviations away in every channel.
const emptyClassCost = 27.0

// ClassStats is a per-channel Gaussian over the RGB values of one class.
type ClassStats struct {
	Count    int
	Mean     [3]float64
	Variance [3]float64
}

// Cost returns the variance-normalised squared distance of (r, g, b) to the
// class, or a constant when the class is empty.
func (s ClassStats) Cost(r, g, b uint8) float64 {
	if s.Count == 0 {
		return emptyClassCost
	}
	dr := float64(r) - s.Mean[0]
	dg := float64(g) - s.Mean[1]
	db := float64(b) - s.Mean[2]
	return dr*dr/s.Variance[0] + dg*dg/s.Variance[1] + db*db/s.Variance[2]
}

// EstimateStats computes foreground and background statistics over every
// pixel of the image according to its current label. Variances are floored
// at varianceFloor; an empty class reports mean 0 and variance 1.
func EstimateStats(img Image, labels *LabelGrid, varianceFloor float64) (fg, bg ClassStats) {
	var sum, sq [2][3]float64
	var count [2]int

	for i, l := range labels.Labels {
		c := 1
		if l.IsForeground() {
			c = 0
		}
		o := i * 4
		for ch := range 3 {
			v := float64(img.Pix[o+ch])
			sum[c][ch] += v
			sq[c][ch] += v * v
		}
		count[c]++
	}

	build := func(c int) ClassStats {
		s := ClassStats{Count: count[c]}
		if s.Count == 0 {
			s.Variance = [3]float64{1, 1, 1}
			return s
		}
		n := float64(s.Count)
		for ch := range 3 {
			mean := sum[c][ch] / n
			variance := sq[c][ch]/n - mean*mean
			s.Mean[ch] = mean
			s.Variance[ch] = max(variance, varianceFloor)
		}
		return s
	}
	return build(0), build(1)
}
