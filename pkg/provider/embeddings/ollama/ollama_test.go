package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := embedResponse{Model: req.Model}
		for range req.Input {
			vec := make([]float32, dims)
			vec[0] = 1
			resp.Embeddings = append(resp.Embeddings, vec)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbed(t *testing.T) {
	srv := newTestServer(t, 768)
	defer srv.Close()

	p, err := New(srv.URL, "nomic-embed-text")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 768 {
		t.Errorf("len(vec) = %d, want 768", len(vec))
	}
}

func TestEmbedBatch(t *testing.T) {
	srv := newTestServer(t, 8)
	defer srv.Close()

	p, err := New(srv.URL, "custom-model", WithDimensions(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Errorf("len(vecs) = %d, want 3", len(vecs))
	}

	if vecs, err := p.EmbedBatch(context.Background(), nil); err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v; want nil, nil", vecs, err)
	}
}

func TestDimensionsKnownModels(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"nomic-embed-text:latest", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},
	}
	for _, tt := range tests {
		p, err := New("", tt.model)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.model, err)
		}
		if got := p.Dimensions(); got != tt.want {
			t.Errorf("Dimensions(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestDimensionsAutoDetect(t *testing.T) {
	srv := newTestServer(t, 512)
	defer srv.Close()

	p, err := New(srv.URL, "totally-unknown-model")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Dimensions(); got != 512 {
		t.Errorf("Dimensions = %d, want 512 via probe", got)
	}
}

func TestNewRequiresModel(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("New with empty model should fail")
	}
}
