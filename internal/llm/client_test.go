package llm_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vellum/internal/catalog"
	"vellum/internal/config"
	"vellum/internal/llm"
	"vellum/internal/manifest"
	"vellum/internal/retry"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server) *llm.Client {
	return llm.NewClient(config.LLM{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	})
}

func TestCompleteJSONReturnsContentAndUsage(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		fmt.Fprint(w, `{
			"choices":[{"message":{"content":"{\"ok\":true}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":120,"completion_tokens":8,"cost":0.0004}
		}`)
	})

	content, usage, err := newTestClient(server).CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", content)
	}
	if usage.PromptTokens != 120 || usage.CompletionTokens != 8 {
		t.Fatalf("unexpected usage %+v", usage)
	}
}

func TestCompleteJSONClassifiesRateLimit(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, _, err := newTestClient(server).CompleteJSON(context.Background(), "system", "user")
	if retry.Classify(err) != retry.KindRateLimit {
		t.Fatalf("expected rate-limit classification, got %v (%v)", retry.Classify(err), err)
	}
	var rl *retry.RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 30*time.Second {
		t.Fatalf("Retry-After not propagated: %v", err)
	}
}

func TestCompleteJSONClassifiesServerErrorTransient(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, err := newTestClient(server).CompleteJSON(context.Background(), "system", "user")
	if retry.Classify(err) != retry.KindTransient {
		t.Fatalf("expected transient classification, got %v (%v)", retry.Classify(err), err)
	}
}

func TestCompleteJSONClientErrorIsFatal(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, _, err := newTestClient(server).CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if retry.Classify(err) != retry.KindFatal {
		t.Fatalf("expected fatal classification, got %v", retry.Classify(err))
	}
}

func TestCompleteJSONEmptyContentIsTransient(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":""},"finish_reason":"stop"}]}`)
	})

	_, _, err := newTestClient(server).CompleteJSON(context.Background(), "system", "user")
	if retry.Classify(err) != retry.KindTransient {
		t.Fatalf("expected transient classification for empty content, got %v (%v)", retry.Classify(err), err)
	}
}

func TestExtractReferencesParsesEntities(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{\"choices\":[{\"message\":{\"content\":\"```json\\n{\\\"entities\\\":[{\\\"name\\\":\\\"Mirabel\\\",\\\"category\\\":\\\"Character\\\",\\\"description\\\":\\\"A cartographer.\\\"}]}\\n```\"}}]}")
	})

	entities, _, err := newTestClient(server).ExtractReferences(context.Background(), "The Lighthouse", "text")
	if err != nil {
		t.Fatalf("ExtractReferences failed: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	if entities[0].Category != "character" {
		t.Fatalf("category not normalized: %q", entities[0].Category)
	}
	if len(entities[0].Citations) != 1 || entities[0].Citations[0] != "The Lighthouse" {
		t.Fatalf("chapter citation missing: %v", entities[0].Citations)
	}
}

func TestAnalyzeScenesParsesPayload(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"summary\":\"The chapter.\",\"scenes\":[{\"summary\":\"A climb.\",\"visual_elements\":\"Stormlight.\",\"entities\":[\"Mirabel\"]}]}"}}]}`)
	})

	analysis, _, err := newTestClient(server).AnalyzeScenes(context.Background(), "The Lighthouse", "text", catalog.New())
	if err != nil {
		t.Fatalf("AnalyzeScenes failed: %v", err)
	}
	if analysis.Summary != "The chapter." || len(analysis.Scenes) != 1 {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	if analysis.Scenes[0].Index != 1 {
		t.Fatalf("scene index not assigned: %+v", analysis.Scenes[0])
	}
}

func TestAnalyzeScenesRejectsEmptySceneList(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"summary\":\"x\",\"scenes\":[]}"}}]}`)
	})

	if _, _, err := newTestClient(server).AnalyzeScenes(context.Background(), "T", "text", catalog.New()); err == nil {
		t.Fatal("expected error for empty scene list")
	}
}

func TestDecodeModelJSONStripsFences(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := llm.DecodeModelJSON("```json\n{\"ok\":true}\n```", &parsed); err != nil {
		t.Fatalf("DecodeModelJSON failed: %v", err)
	}
	if !parsed.OK {
		t.Fatal("payload not decoded")
	}
}

func TestDecodeModelJSONExtractsEmbeddedObject(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := llm.DecodeModelJSON(`Here is the result: {"ok":true}. Done.`, &parsed); err != nil {
		t.Fatalf("DecodeModelJSON failed: %v", err)
	}
	if !parsed.OK {
		t.Fatal("payload not decoded")
	}
}

func TestImageGenerateDecodesPayload(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(png))
	})

	client := llm.NewImageClient(config.Images{BaseURL: server.URL, Model: "test-image"}, "test-key")
	image, err := client.Generate(context.Background(), "a lighthouse at dusk")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if string(image) != string(png) {
		t.Fatalf("unexpected image bytes %v", image)
	}
}

func TestImageGenerateClassifiesRateLimit(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	client := llm.NewImageClient(config.Images{BaseURL: server.URL}, "test-key")
	_, err := client.Generate(context.Background(), "prompt")
	if retry.Classify(err) != retry.KindRateLimit {
		t.Fatalf("expected rate-limit classification, got %v (%v)", retry.Classify(err), err)
	}
}

func TestScenePromptIncludesStyleAndEntities(t *testing.T) {
	refs := catalog.New()
	refs.Merge([]catalog.Entity{
		{Name: "Mirabel", Category: "character", Description: "A cartographer with a brass compass."},
	})
	client := llm.NewImageClient(config.Images{StylePrefix: "Watercolor storybook illustration."}, "test-key")

	prompt := client.ScenePrompt(manifest.Scene{
		Summary:        "Mirabel climbs the lighthouse stairs.",
		VisualElements: "Storm clouds through the window.",
		Entities:       []string{"Mirabel"},
	}, refs)

	if !strings.HasPrefix(prompt, "Watercolor storybook illustration.") {
		t.Fatalf("style prefix missing: %q", prompt)
	}
	if !strings.Contains(prompt, "brass compass") {
		t.Fatalf("entity description missing: %q", prompt)
	}
}
