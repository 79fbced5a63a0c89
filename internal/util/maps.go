package util

import "reflect"

type DiffValue struct {
	Left  any
	Right any
}

// MapDiff returns the keys present in both maps whose values differ.
func MapDiff[K comparable, V any](a, b map[K]V) map[K]DiffValue {
	c := make(map[K]DiffValue)
	for k, v := range a {
		if bv, ok := b[k]; ok && !reflect.DeepEqual(v, bv) {
			c[k] = DiffValue{v, bv}
		}
	}
	return c
}
