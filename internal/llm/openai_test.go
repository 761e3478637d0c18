package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// newMockOpenAI returns a client pointed at a test server that answers
// every chat completion with the given message content.
func newMockOpenAI(t *testing.T, content string) (*OpenAIClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})
	return client, srv
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key"})
	if client.model != "gpt-4o-mini" {
		t.Errorf("model = %q, want %q", client.model, "gpt-4o-mini")
	}
}

func TestExtractClaims(t *testing.T) {
	t.Run("claims present", func(t *testing.T) {
		client, srv := newMockOpenAI(t, `{"claims":[{"text":"Python 3.12 removed distutils","subject":"Python 3.12"}]}`)
		defer srv.Close()

		claims, err := client.ExtractClaims(context.Background(), "Python 3.12 removed distutils from the standard library.")
		if err != nil {
			t.Fatalf("ExtractClaims: %v", err)
		}
		if len(claims) != 1 {
			t.Fatalf("got %d claims, want 1", len(claims))
		}
		if claims[0].Subject != "Python 3.12" {
			t.Errorf("subject = %q, want %q", claims[0].Subject, "Python 3.12")
		}
	})

	t.Run("no claims", func(t *testing.T) {
		client, srv := newMockOpenAI(t, `{"claims":[]}`)
		defer srv.Close()

		claims, err := client.ExtractClaims(context.Background(), "How is everyone doing today?")
		if err != nil {
			t.Fatalf("ExtractClaims: %v", err)
		}
		if len(claims) != 0 {
			t.Errorf("got %d claims, want 0", len(claims))
		}
	})

	t.Run("code fence stripped", func(t *testing.T) {
		client, srv := newMockOpenAI(t, "```json\n{\"claims\":[{\"text\":\"water boils at 100C\",\"subject\":\"water\"}]}\n```")
		defer srv.Close()

		claims, err := client.ExtractClaims(context.Background(), "Water boils at 100 degrees.")
		if err != nil {
			t.Fatalf("ExtractClaims: %v", err)
		}
		if len(claims) != 1 {
			t.Errorf("got %d claims, want 1", len(claims))
		}
	})

	t.Run("malformed response", func(t *testing.T) {
		client, srv := newMockOpenAI(t, "I could not find any claims, sorry!")
		defer srv.Close()

		_, err := client.ExtractClaims(context.Background(), "anything")
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("err = %v, want ErrMalformedResponse", err)
		}
	})

	t.Run("empty claim text dropped", func(t *testing.T) {
		client, srv := newMockOpenAI(t, `{"claims":[{"text":"  ","subject":"x"},{"text":"real claim","subject":"y"}]}`)
		defer srv.Close()

		claims, err := client.ExtractClaims(context.Background(), "anything")
		if err != nil {
			t.Fatalf("ExtractClaims: %v", err)
		}
		if len(claims) != 1 || claims[0].Text != "real claim" {
			t.Errorf("claims = %v, want only the non-empty one", claims)
		}
	})
}

func TestJudgeClaim(t *testing.T) {
	passages := []EvidencePassage{{URL: "https://docs.python.org/3/whatsnew/3.12.html", Text: "distutils was removed"}}

	t.Run("valid verdict", func(t *testing.T) {
		client, srv := newMockOpenAI(t, `{"status":"supported","confidence":0.92,"rationale":"The changelog confirms the removal.","evidence_url":"https://docs.python.org/3/whatsnew/3.12.html"}`)
		defer srv.Close()

		v, err := client.JudgeClaim(context.Background(), "Python 3.12 removed distutils", passages)
		if err != nil {
			t.Fatalf("JudgeClaim: %v", err)
		}
		if v.Status != "supported" {
			t.Errorf("status = %q, want supported", v.Status)
		}
		if v.Confidence != 0.92 {
			t.Errorf("confidence = %v, want 0.92", v.Confidence)
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		client, srv := newMockOpenAI(t, `{"status":"probably","confidence":0.5,"rationale":"","evidence_url":""}`)
		defer srv.Close()

		_, err := client.JudgeClaim(context.Background(), "claim", passages)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("err = %v, want ErrMalformedResponse", err)
		}
	})

	t.Run("confidence out of range rejected", func(t *testing.T) {
		client, srv := newMockOpenAI(t, `{"status":"supported","confidence":1.7,"rationale":"","evidence_url":""}`)
		defer srv.Close()

		_, err := client.JudgeClaim(context.Background(), "claim", passages)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("err = %v, want ErrMalformedResponse", err)
		}
	})
}

func TestUsageAccumulates(t *testing.T) {
	client, srv := newMockOpenAI(t, `{"claims":[]}`)
	defer srv.Close()

	for i := 0; i < 3; i++ {
		if _, err := client.ExtractClaims(context.Background(), "hello there"); err != nil {
			t.Fatalf("ExtractClaims: %v", err)
		}
	}
	u := client.Usage()
	if u.PromptTokens != 30 || u.CompletionTokens != 15 {
		t.Errorf("usage = %+v, want 30 prompt / 15 completion", u)
	}
}

func TestVerdictUserPrompt(t *testing.T) {
	got := verdictUserPrompt("the claim", []EvidencePassage{{URL: "https://a", Text: "b"}})
	if !strings.Contains(got, "the claim") || !strings.Contains(got, "https://a") {
		t.Errorf("prompt missing claim or passage: %q", got)
	}
}
