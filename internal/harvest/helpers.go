package harvest

import "sort"

// missingFrom returns the keys of a that are not present in b, sorted so
// that object emission is deterministic across cycles.
func missingFrom(a map[string]struct{}, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// inBoth returns the keys present in both a and b, sorted.
func inBoth(a map[string]struct{}, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func keySet(m map[string]string) map[string]struct{} {
	s := make(map[string]struct{}, len(m))
	for k := range m {
		s[k] = struct{}{}
	}
	return s
}
