package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is raw participant input: either a string or a number. Its shape is
// checked against the question type during ingestion.
type Value struct {
	text     string
	number   float64
	isNumber bool
}

// TextValue wraps free text or an option label.
func TextValue(s string) Value {
	return Value{text: s}
}

// NumberValue wraps a numeric answer such as a rating.
func NumberValue(n float64) Value {
	return Value{number: n, isNumber: true}
}

// IsNumber reports whether the participant sent a number.
func (v Value) IsNumber() bool { return v.isNumber }

// Text returns the string form; empty for numbers.
func (v Value) Text() string { return v.text }

// Number returns the numeric form; zero for text.
func (v Value) Number() float64 { return v.number }

func (v Value) String() string {
	if v.isNumber {
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	}
	return v.text
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isNumber {
		return json.Marshal(v.number)
	}
	return json.Marshal(v.text)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value: %w", ErrInvalidAnswerType)
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextValue(s)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = NumberValue(n)
		return nil
	default:
		return fmt.Errorf("value must be a string or a number: %w", ErrInvalidAnswerType)
	}
}
