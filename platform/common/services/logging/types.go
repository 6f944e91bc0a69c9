/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hyperledger-labs/fabric-gateway-events/platform/common/utils/collections"
)

const (
	nonPrintableMarker = "[nonprintable] "
	prefixLength       = 16
)

// Keys logs lazily the keys of a map
func Keys[K comparable, V any](m map[K]V) fmt.Stringer {
	return keys[K, V](m)
}

type keys[K comparable, V any] map[K]V

func (k keys[K, V]) String() string {
	return fmt.Sprintf(strings.Join(collections.Repeat("%v", len(k)), ", "), collections.AnyKeys(k)...)
}

// Printable logs lazily a string received from a remote party, dropping non-printable characters
func Printable(s string) fmt.Stringer {
	return printable(s)
}

type printable string

func (p printable) String() string {
	return strings.TrimPrefix(FilterPrintableWithMarker(string(p)), nonPrintableMarker)
}

// Prefix logs lazily the printable head of a possibly long identifier
func Prefix(s string) fmt.Stringer {
	return prefix(s)
}

type prefix string

func (p prefix) String() string {
	s := printable(p).String()
	if len(s) <= prefixLength {
		return s
	}
	return s[:prefixLength] + "~"
}

// FilterPrintableWithMarker removes non-printable runes and marks the result if any was found
func FilterPrintableWithMarker(s string) string {
	found := false
	filtered := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		found = true
		return -1
	}, s)
	if found {
		return nonPrintableMarker + filtered
	}
	return filtered
}
