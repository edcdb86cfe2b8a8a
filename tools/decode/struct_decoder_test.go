package decode

import (
	"testing"
)

type samplePayload struct {
	Content   string         `json:"content"`
	Context   map[string]any `json:"context"`
	Model     string         `json:"model"`
	RequestID string         `json:"request_id"`
	Count     int64          `json:"count"`
	Tags      []string       `json:"tags"`
}

func TestDecodeMapBasics(t *testing.T) {
	m := map[string]any{
		"content":    "hello",
		"request_id": "r1",
		"context":    map[string]any{"k": "v"},
		"count":      float64(3), // JSON 数字总是 float64
		"tags":       []any{"a", "b"},
	}
	p, err := DecodeMap[samplePayload](m)
	if err != nil {
		t.Fatal(err)
	}
	if p.Content != "hello" || p.RequestID != "r1" {
		t.Errorf("decoded = %+v", p)
	}
	if p.Count != 3 {
		t.Errorf("count = %d, want 3", p.Count)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "a" {
		t.Errorf("tags = %v, want [a b]", p.Tags)
	}
	if p.Context["k"] != "v" {
		t.Errorf("context = %v", p.Context)
	}
	if p.Model != "" {
		t.Errorf("model = %q, want zero value for absent key", p.Model)
	}
}

func TestDecodeMapWeakTyping(t *testing.T) {
	p, err := DecodeMap[samplePayload](map[string]any{"count": "12"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Count != 12 {
		t.Errorf("count = %d, want 12 from string input", p.Count)
	}

	if _, err := DecodeMap[samplePayload](map[string]any{"count": "12"}, WithWeaklyTypedInput(false)); err == nil {
		t.Error("strict decode accepted string for int64 field")
	}
}

func TestDecodeMapNil(t *testing.T) {
	if _, err := DecodeMap[samplePayload](nil); err == nil {
		t.Error("DecodeMap(nil) succeeded")
	}
}

func TestReadString(t *testing.T) {
	m := map[string]any{"type": "ping", "n": float64(5), "b": true}
	if v, err := ReadString(m, "type"); err != nil || v != "ping" {
		t.Errorf("ReadString type = %q, %v", v, err)
	}
	if v, err := ReadString(m, "n"); err != nil || v != "5" {
		t.Errorf("ReadString n = %q, %v; want numeric rendered as string", v, err)
	}
	if _, err := ReadString(m, "b"); err == nil {
		t.Error("ReadString accepted bool")
	}
	if _, err := ReadString(m, "missing"); err == nil {
		t.Error("ReadString accepted missing key")
	}
}
