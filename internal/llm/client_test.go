package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"weatherbot/pkg/logx"
)

func TestRewriteDisabledReturnsOriginal(t *testing.T) {
	c := NewClient(Config{}, logx.Nop())
	if got := c.Rewrite(context.Background(), "原文"); got != "原文" {
		t.Fatalf("disabled rewrite = %q", got)
	}
}

func TestRewriteUsesModelAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"改写后的播报"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Enabled: true, BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"}, logx.Nop())
	if got := c.Rewrite(context.Background(), "原文"); got != "改写后的播报" {
		t.Fatalf("rewrite = %q", got)
	}
}

func TestRewriteFallsBackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream overloaded"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Enabled: true, BaseURL: srv.URL, Model: "m"}, logx.Nop())
	if got := c.Rewrite(context.Background(), "原文"); got != "原文" {
		t.Fatalf("fallback rewrite = %q, want original", got)
	}
}

func TestRewriteFallsBackOnEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Enabled: true, BaseURL: srv.URL, Model: "m"}, logx.Nop())
	if got := c.Rewrite(context.Background(), "原文"); got != "原文" {
		t.Fatalf("empty-answer rewrite = %q, want original", got)
	}
}
