package models

import (
	"encoding/json"
	"testing"
)

func TestValues_MarshalJSON(t *testing.T) {
	v := Values{"a": {"1"}, "b": {"1", "2"}}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"a":"1","b":["1","2"]}` {
		t.Errorf("unexpected encoding %s", b)
	}
}

func TestParseValues(t *testing.T) {
	tests := []struct {
		name string
		in   string
		key  string
		want []string
	}{
		{"single", `{"x-event":"push"}`, "x-event", []string{"push"}},
		{"array", `{"tag":["a","b"]}`, "tag", []string{"a", "b"}},
		{"number", `{"n":5}`, "n", []string{"5"}},
		{"malformed", `{not json`, "x", nil},
		{"empty", ``, "x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ParseValues(tt.in)
			if v == nil {
				t.Fatal("expected non-nil map")
			}
			got := v[tt.key]
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestWebhook_RelayTarget(t *testing.T) {
	if _, ok := (&Webhook{Active: true}).RelayTarget(); ok {
		t.Error("webhook without target must not relay")
	}
	if _, ok := (&Webhook{TargetURL: "http://x", Active: false}).RelayTarget(); ok {
		t.Error("inactive webhook must not relay")
	}
	if u, ok := (&Webhook{TargetURL: "http://x", Active: true}).RelayTarget(); !ok || u != "http://x" {
		t.Errorf("expected relay to http://x, got %q %v", u, ok)
	}
	var nilWebhook *Webhook
	if _, ok := nilWebhook.RelayTarget(); ok {
		t.Error("nil webhook must not relay")
	}
}
