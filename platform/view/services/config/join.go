/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"strings"
)

// Join builds a configuration key from its components.
// Dots and spaces around each component are dropped, as are empty components.
func Join(components ...string) string {
	parts := make([]string, 0, len(components))
	for _, c := range components {
		if c = strings.Trim(c, " ."); len(c) != 0 {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, ".")
}
