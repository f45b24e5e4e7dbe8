package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &types.RunSummary{
		Duration: 2 * time.Second,
		Results: []types.TargetResult{
			{Target: "BBC Business", Status: types.StatusSuccess, Found: 12, New: 3},
			{Target: "FINVIZ News", Status: types.StatusFailed, Error: "no article links discovered"},
		},
	})
	out := buf.String()
	for _, want := range []string{"BBC Business", "success", "no article links discovered", "12 found, 3 new, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestFindTarget(t *testing.T) {
	cfg := config.DefaultConfig()

	if tg, ok := findTarget(cfg, "npr business", ""); !ok || tg.Name != "NPR Business" {
		t.Errorf("by name = %+v, %v", tg, ok)
	}
	if tg, ok := findTarget(cfg, "", "https://www.npr.org/sections/business"); !ok || tg.Name != "NPR Business" {
		t.Errorf("by URL = %+v, %v", tg, ok)
	}
	if _, ok := findTarget(cfg, "", "https://example.com/"); ok {
		t.Error("unknown URL matched a target")
	}
}

func TestApplyRunOverrides(t *testing.T) {
	noRender, maxCandidates, storageType, runInterval = true, 5, "Memory", time.Minute
	defer func() { noRender, maxCandidates, storageType, runInterval = false, 0, "", 0 }()

	cfg := config.DefaultConfig()
	cfg.Browser.Enabled = true
	applyRunOverrides(cfg)

	if cfg.Browser.Enabled || cfg.Engine.MaxCandidates != 5 || cfg.Storage.Type != "memory" || cfg.Engine.Interval != time.Minute {
		t.Errorf("overrides not applied: browser=%v max=%d storage=%q interval=%v",
			cfg.Browser.Enabled, cfg.Engine.MaxCandidates, cfg.Storage.Type, cfg.Engine.Interval)
	}
}
