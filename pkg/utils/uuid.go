/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package utils

import (
	"path/filepath"

	"github.com/google/uuid"
)

func init() {
	// pooled random bytes are kept on the heap, see uuid.EnableRandPool
	uuid.EnableRandPool()
}

// GenerateUUID creates a new random UUID and returns it as a string
func GenerateUUID() string {
	return uuid.NewString()
}

// TempPath returns a unique hidden path next to path, to write before an atomic rename onto path
func TempPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+GenerateUUID()+".tmp")
}
