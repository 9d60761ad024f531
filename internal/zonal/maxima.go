package zonal

// Maximum names the region with the highest share of one class.
type Maximum struct {
	Code    int32   `json:"code"`
	Class   string  `json:"class"`
	Color   string  `json:"color"`
	Region  string  `json:"region"`
	Percent float64 `json:"percent"`
}

// Maxima finds, for each class in table order, the region with the highest
// percentage among the non-nil results. Ties keep the earliest region in
// input order. Classes no region has a nonzero share of are omitted.
func Maxima(classes *ClassTable, results []*Result) []Maximum {
	var out []Maximum
	for i, c := range classes.classes {
		best := 0.0
		var winner *Result
		for _, res := range results {
			if res == nil || res.Empty() || i >= len(res.Classes) {
				continue
			}
			if p := res.Classes[i].Percent; p > best {
				best = p
				winner = res
			}
		}
		if winner == nil {
			continue
		}
		out = append(out, Maximum{
			Code:    c.Code,
			Class:   c.Name,
			Color:   c.Color,
			Region:  winner.Region,
			Percent: best,
		})
	}
	return out
}
