package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValueDecodesTextAndNumbers(t *testing.T) {
	var payload struct {
		Value Value `json:"value"`
	}
	if err := json.Unmarshal([]byte(`{"value":"Blue"}`), &payload); err != nil {
		t.Fatalf("decode text: %v", err)
	}
	if payload.Value.IsNumber() || payload.Value.Text() != "Blue" {
		t.Fatalf("expected text Blue, got %v", payload.Value)
	}
	if err := json.Unmarshal([]byte(`{"value":-3.5}`), &payload); err != nil {
		t.Fatalf("decode number: %v", err)
	}
	if !payload.Value.IsNumber() || payload.Value.Number() != -3.5 {
		t.Fatalf("expected -3.5, got %v", payload.Value)
	}
}

func TestValueRejectsOtherJSONTypes(t *testing.T) {
	for _, raw := range []string{`true`, `[1]`, `{"a":1}`} {
		var v Value
		if err := json.Unmarshal([]byte(raw), &v); !errors.Is(err, ErrInvalidAnswerType) {
			t.Fatalf("%s: expected invalid answer type, got %v", raw, err)
		}
	}
}

func TestValueEncodesAsPlainJSON(t *testing.T) {
	data, err := json.Marshal([]Value{TextValue("hi"), NumberValue(7)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["hi",7]` {
		t.Fatalf("unexpected encoding %s", data)
	}
	if NumberValue(7).String() != "7" || TextValue("x").String() != "x" {
		t.Fatalf("unexpected string forms")
	}
}
