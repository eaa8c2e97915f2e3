package queue

import (
	"encoding/json"
	"testing"
)

type testPayload struct {
	Symbol string `json:"symbol"`
	Days   int    `json:"days"`
}

func TestParsePayloadTyped(t *testing.T) {
	in := testPayload{Symbol: "SAP.DE", Days: 3}

	got, err := ParsePayload[testPayload](in)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if *got != in {
		t.Errorf("value: got %+v", *got)
	}

	got, err = ParsePayload[testPayload](&in)
	if err != nil {
		t.Fatalf("pointer: %v", err)
	}
	if got != &in {
		t.Errorf("pointer: expected the same instance back")
	}
}

func TestParsePayloadDecodedForms(t *testing.T) {
	m := map[string]interface{}{"symbol": "BMW.DE", "days": float64(2)}
	got, err := ParsePayload[testPayload](m)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if got.Symbol != "BMW.DE" || got.Days != 2 {
		t.Errorf("map: got %+v", *got)
	}

	raw := json.RawMessage(`{"symbol":"DTE.DE","days":5}`)
	got, err = ParsePayload[testPayload](raw)
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if got.Symbol != "DTE.DE" || got.Days != 5 {
		t.Errorf("raw: got %+v", *got)
	}

	if _, err := ParsePayload[testPayload](42); err == nil {
		t.Error("int payload: expected error")
	}
}

func TestNormalizePayload(t *testing.T) {
	m := map[string]interface{}{"symbol": "SAP.DE"}
	out := normalizePayload(m)
	raw, ok := out.(json.RawMessage)
	if !ok {
		t.Fatalf("expected json.RawMessage, got %T", out)
	}
	var back testPayload
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Symbol != "SAP.DE" {
		t.Errorf("got %+v", back)
	}

	// Non-map payloads pass through untouched.
	if got := normalizePayload("plain"); got != "plain" {
		t.Errorf("got %v", got)
	}
}

func TestQueueKeysShareOnePrefix(t *testing.T) {
	k := keysFor("sessionscope:jobs")
	if k.pending != "sessionscope:jobs:messages" {
		t.Errorf("pending: %s", k.pending)
	}
	if k.retry != "sessionscope:jobs:retry" {
		t.Errorf("retry: %s", k.retry)
	}
	if k.dead != "sessionscope:jobs:dlq" {
		t.Errorf("dead: %s", k.dead)
	}
}

func TestModeString(t *testing.T) {
	if ModeProducerConsumer.String() != "producer-consumer" {
		t.Errorf("got %s", ModeProducerConsumer)
	}
	if ModeProducerOnly.String() != "producer-only" {
		t.Errorf("got %s", ModeProducerOnly)
	}
	if ModeConsumerOnly.String() != "consumer-only" {
		t.Errorf("got %s", ModeConsumerOnly)
	}
}
