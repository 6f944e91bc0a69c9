/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package collections

// Keys returns the keys of m in no particular order
func Keys[K comparable, V any](m map[K]V) []K {
	res := make([]K, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	return res
}

// AnyKeys returns the keys of m boxed, ready to be passed to a variadic formatter
func AnyKeys[K comparable, V any](m map[K]V) []any {
	res := make([]any, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	return res
}

// Repeat returns a slice holding item the given number of times
func Repeat[T any](item T, times int) []T {
	items := make([]T, times)
	for i := range items {
		items[i] = item
	}
	return items
}
