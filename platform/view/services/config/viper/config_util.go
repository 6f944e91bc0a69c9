/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package viperutil

import (
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hyperledger-labs/fabric-gateway-events/pkg/utils/errors"
	"github.com/spf13/viper"
)

// sliceDecodeHook parses strings of the format "[thing1, thing2, thing3]" into string slices.
// Whitespace around slice elements is removed.
func sliceDecodeHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t.Kind() != reflect.Slice {
		return data, nil
	}

	raw := data.(string)
	l := len(raw)
	if l > 1 && raw[0] == '[' && raw[l-1] == ']' {
		if l == 2 {
			return []string{}, nil
		}
		slice := strings.Split(raw[1:l-1], ",")
		for i, v := range slice {
			slice[i] = strings.TrimSpace(v)
		}
		return slice, nil
	}
	return data, nil
}

// EnhancedExactUnmarshal unmarshals the value at key into output, supporting durations,
// bracketed string slices and types implementing encoding.TextUnmarshaler
func EnhancedExactUnmarshal(v *viper.Viper, key string, output interface{}) error {
	if reflect.TypeOf(output).Kind() != reflect.Ptr {
		return errors.Errorf("supplied output argument must be a pointer to a struct but is not pointer")
	}

	config := &mapstructure.DecoderConfig{
		ErrorUnused:      false,
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
			sliceDecodeHook,
		),
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return errors.Wrap(err, "failed creating decoder")
	}
	if err := decoder.Decode(v.Get(key)); err != nil {
		return errors.Wrapf(err, "failed decoding [%s]", key)
	}
	return nil
}
