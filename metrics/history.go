package metrics

// History keeps one series per metric, one value per epoch.
type History map[string][]float64

// NewHistory creates empty series for every metric name, plus "loss" when
// withLoss is set.
func NewHistory(withLoss bool) History {
	h := make(History, len(Names)+1)
	for _, name := range Names {
		h[name] = []float64{}
	}
	if withLoss {
		h["loss"] = []float64{}
	}
	return h
}

// Append adds this epoch's value to every series. Missing values record 0.
func (h History) Append(values map[string]float64) {
	for name := range h {
		h[name] = append(h[name], values[name])
	}
}

// Epochs is the length of the longest series.
func (h History) Epochs() int {
	n := 0
	for _, series := range h {
		if len(series) > n {
			n = len(series)
		}
	}
	return n
}

// Merge returns prev followed by next, series by series.
func Merge(prev, next History) History {
	out := make(History, len(prev))
	for name, series := range prev {
		out[name] = append(append([]float64{}, series...), next[name]...)
	}
	for name, series := range next {
		if _, ok := prev[name]; !ok {
			out[name] = append([]float64{}, series...)
		}
	}
	return out
}
