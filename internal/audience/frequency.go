package audience

import "sort"

// frequency counts values and remembers the order they first appeared in,
// which breaks ties when ranking.
type frequency struct {
	order  []string
	counts map[string]int
}

func newFrequency() *frequency {
	return &frequency{counts: make(map[string]int)}
}

func (f *frequency) add(v string) {
	if v == "" {
		return
	}
	if _, ok := f.counts[v]; !ok {
		f.order = append(f.order, v)
	}
	f.counts[v]++
}

func (f *frequency) addAll(vs []string) {
	for _, v := range vs {
		f.add(v)
	}
}

// top returns up to n values by descending count.
func (f *frequency) top(n int) []string {
	keys := append([]string(nil), f.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return f.counts[keys[i]] > f.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	if keys == nil {
		return []string{}
	}
	return keys
}
