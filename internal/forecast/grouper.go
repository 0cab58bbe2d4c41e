package forecast

import "sort"

// Observation is one measured quantity for one entity at one point in time.
type Observation struct {
	EntityKey string  `json:"entity_key"`
	OrderKey  string  `json:"order_key"`
	Value     float64 `json:"value"`
}

// Series is the ordered history of a single entity.
type Series struct {
	EntityKey string
	OrderKeys []string
	Values    []float64
}

// Len returns the number of points in the series.
func (s Series) Len() int {
	return len(s.Values)
}

// Grouper partitions observations into per-entity series.
//
// Less orders observations inside a series and defaults to plain string
// comparison of OrderKey. Dates must therefore be supplied in a sortable form
// (e.g. YYYY-MM-DD); "1/10/2024" sorts before "1/9/2024".
//
// Include, when set, keeps only the entities it returns true for.
type Grouper struct {
	Less    func(a, b string) bool
	Include func(entityKey string) bool
}

// Group splits observations with the default Grouper.
func Group(observations []Observation) ([]Series, error) {
	return Grouper{}.Group(observations)
}

// Group returns one Series per entity, ordered by EntityKey. Observations that
// share an OrderKey keep their input order.
func (g Grouper) Group(observations []Observation) ([]Series, error) {
	if len(observations) == 0 {
		return nil, invalidInput("no observations provided")
	}

	less := g.Less
	if less == nil {
		less = func(a, b string) bool { return a < b }
	}

	groups := make(map[string][]Observation)
	for _, obs := range observations {
		if g.Include != nil && !g.Include(obs.EntityKey) {
			continue
		}
		groups[obs.EntityKey] = append(groups[obs.EntityKey], obs)
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	series := make([]Series, 0, len(keys))
	for _, key := range keys {
		group := groups[key]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return less(group[i].OrderKey, group[j].OrderKey)
		})

		s := Series{
			EntityKey: key,
			OrderKeys: make([]string, len(group)),
			Values:    make([]float64, len(group)),
		}
		for i, obs := range group {
			s.OrderKeys[i] = obs.OrderKey
			s.Values[i] = obs.Value
		}
		series = append(series, s)
	}
	return series, nil
}
