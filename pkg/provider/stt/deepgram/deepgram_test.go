package deepgram

import (
	"strings"
	"testing"

	"github.com/HowDiggy/signconnect/pkg/provider/stt"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantText string
		wantOK   bool
		final    bool
	}{
		{
			name:     "interim result",
			input:    `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello wor","confidence":0.82}]}}`,
			wantText: "hello wor",
			wantOK:   true,
			final:    false,
		},
		{
			name:     "final result",
			input:    `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world","confidence":0.97}]}}`,
			wantText: "hello world",
			wantOK:   true,
			final:    true,
		},
		{
			name:   "empty transcript ignored",
			input:  `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"","confidence":0}]}}`,
			wantOK: false,
		},
		{
			name:   "metadata message ignored",
			input:  `{"type":"Metadata","request_id":"abc"}`,
			wantOK: false,
		},
		{
			name:   "no alternatives ignored",
			input:  `{"type":"Results","channel":{"alternatives":[]}}`,
			wantOK: false,
		},
		{
			name:   "malformed JSON ignored",
			input:  `{not json`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseResponse([]byte(tt.input))
			if ok != tt.wantOK {
				t.Fatalf("parseResponse ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.IsFinal != tt.final {
				t.Errorf("IsFinal = %v, want %v", got.IsFinal, tt.final)
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u, err := p.buildURL(stt.StreamConfig{Interim: true, SampleRate: 16000, Language: "de"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	for _, want := range []string{"model=nova-3", "language=de", "interim_results=true", "sample_rate=16000", "punctuate=true"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL %q missing %q", u, want)
		}
	}
	if strings.Contains(u, "encoding=") {
		t.Errorf("URL %q should not set encoding for container audio", u)
	}

	u, err = p.buildURL(stt.StreamConfig{Encoding: stt.EncodingLinear16})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	if !strings.Contains(u, "encoding=linear16") {
		t.Errorf("URL %q missing encoding=linear16", u)
	}
	if !strings.Contains(u, "sample_rate=48000") {
		t.Errorf("URL %q missing default sample rate", u)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New with empty key should fail")
	}
}
