// Copyright (c) 2025 The cjcore developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import "strconv"

// PercentFlag holds a percentage in [0, 100] and implements the
// flags.Marshaler and Unmarshaler interfaces so it can be used as a
// config struct field, the same way AmountFlag wraps btcutil.Amount.
type PercentFlag struct {
	Value float64
}

// NewPercentFlag creates a PercentFlag with a default value.
func NewPercentFlag(defaultValue float64) *PercentFlag {
	return &PercentFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (p *PercentFlag) MarshalFlag() (string, error) {
	return strconv.FormatFloat(p.Value, 'f', -1, 64), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (p *PercentFlag) UnmarshalFlag(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	if f < 0 || f > 100 {
		return errPercentOutOfRange
	}
	p.Value = f
	return nil
}

var errPercentOutOfRange = percentRangeError{}

type percentRangeError struct{}

func (percentRangeError) Error() string {
	return "percent value must be between 0 and 100"
}
