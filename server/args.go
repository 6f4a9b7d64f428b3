package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Args is the positional argument list of a request, each element still in its JSON form.
type Args []json.RawMessage

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// Float returns argument i as a float64.
func (a Args) Float(i int) (float64, error) {
	raw, err := a.at(i)
	if err != nil {
		return 0, err
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: argument %d must be a number, got %s", ErrArgType, i, raw)
	}

	return v, nil
}

// Int returns argument i as an int. Integral floats such as 3.0 are accepted.
func (a Args) Int(i int) (int, error) {
	v, err := a.Float(i)
	if err != nil {
		return 0, fmt.Errorf("%w: argument %d must be an integer, got %s", ErrArgType, i, a[i])
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: argument %d must be an integer, got %s", ErrArgType, i, a[i])
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("%w: argument %d is %s", ErrArgRange, i, a[i])
	}

	return int(v), nil
}

// Uint16 returns argument i as a register value in 0..65535.
func (a Args) Uint16(i int) (uint16, error) {
	v, err := a.Int(i)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("%w: argument %d must be in [0, 65535], got %d", ErrArgRange, i, v)
	}

	return uint16(v), nil
}

// Bool returns argument i as a bool. JSON booleans and the integers 0 and 1 are accepted.
func (a Args) Bool(i int) (bool, error) {
	raw, err := a.at(i)
	if err != nil {
		return false, err
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}

	v, err := a.Int(i)
	if err != nil || (v != 0 && v != 1) {
		return false, fmt.Errorf("%w: argument %d must be a boolean or 0/1, got %s", ErrArgType, i, raw)
	}

	return v == 1, nil
}

func (a Args) at(i int) (json.RawMessage, error) {
	if i < 0 || i >= len(a) {
		return nil, fmt.Errorf("%w: no argument %d", ErrArity, i)
	}

	raw := bytes.TrimSpace(a[i])
	if bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: argument %d is null", ErrArgType, i)
	}

	return raw, nil
}
