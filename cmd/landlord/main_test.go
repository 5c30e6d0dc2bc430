package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/mohammad-safakhou/landlord/config"
	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/tools/web_search"
)

func TestProcessCommandWithoutLLMUsesFallbacks(t *testing.T) {
	t.Setenv("LANDLORD_LLM_API_KEY", "")
	t.Setenv("LANDLORD_STORAGE_POSTGRES_URL", "")
	t.Setenv("LANDLORD_STORAGE_POSTGRES_HOST", "")
	t.Setenv("LANDLORD_STORAGE_REDIS_HOST", "")
	t.Setenv("LANDLORD_SOURCES_WEB_SEARCH_SERPER_API_KEY", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"process", "The roof is leaking in apartment 3B"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var state core.State
	if err := json.Unmarshal(out.Bytes(), &state); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if state.Category != core.CategoryMaintenance {
		t.Fatalf("expected maintenance, got %q", state.Category)
	}
	if _, ok := state.Metadata[core.MetaMaintenanceAnalysis]; !ok {
		t.Fatalf("maintenance fallback missing from metadata: %v", state.Metadata)
	}
}

func TestWebSearcherSelection(t *testing.T) {
	p, key := webSearcher(config.WebSearchConfig{Provider: "brave", BraveAPIKey: "b", SerperAPIKey: "s"})
	if p != web_search.BraveProvider || key != "b" {
		t.Fatalf("got %s/%s", p, key)
	}
	p, key = webSearcher(config.WebSearchConfig{SerperAPIKey: "s"})
	if p != web_search.SerperProvider || key != "s" {
		t.Fatalf("got %s/%s", p, key)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := newLogger(config.GeneralConfig{LogLevel: "chatty"}, false); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := newLogger(config.GeneralConfig{LogLevel: "warn"}, true); err != nil {
		t.Fatalf("newLogger: %v", err)
	}
}
