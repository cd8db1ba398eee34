package indicators

// EMA computes an exponential moving average seeded with the first
// value, smoothing factor 2/(span+1). Empty input yields empty output.
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1)

	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
