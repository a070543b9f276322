package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"postai-api/internal/client"
	"postai-api/internal/domain/entity"
)

func TestGenerateCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != client.PathGenerate {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(entity.GenerationResult{LinkedIn: "Hello **world**", X: "", Log: []entity.LogEntry{}})
	}))
	defer srv.Close()

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"generate", "--server", srv.URL, "--html", "launch", "day"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	if !strings.Contains(got, "<strong>world</strong>") {
		t.Fatalf("output = %s", got)
	}
	if !strings.Contains(got, "== X / Twitter Post ==\nNo output yet") {
		t.Fatalf("output = %s", got)
	}
}

func TestCommandRequiresPrompt(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"generate"})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing prompt error")
	}
}
