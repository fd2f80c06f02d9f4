package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Analysis hooks
	a := NoopAnalysisHooks{}
	a.OnLoadStart(ctx, "alleleseq", "CTCF")
	a.OnLoadComplete(ctx, "alleleseq", "CTCF", 100, time.Second, nil)
	a.OnEstimateStart(ctx, "asb", 100)
	a.OnEstimateComplete(ctx, "asb", time.Second, nil)
	a.OnExtractStart(ctx, "hg19", 50)
	a.OnExtractComplete(ctx, "hg19", time.Second, nil)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "region")
	c.OnCacheMiss(ctx, "table")
	c.OnCacheSet(ctx, "result", 1024)

	// HTTP hooks
	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "POST", "/api/v1/asb")
	h.OnResponse(ctx, "POST", "/api/v1/asb", 200, time.Second)
	h.OnError(ctx, "POST", "/api/v1/asb", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Analysis().(NoopAnalysisHooks); !ok {
		t.Error("Analysis() should return NoopAnalysisHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	// Set custom hooks
	customAnalysis := &testAnalysisHooks{}
	SetAnalysisHooks(customAnalysis)
	if Analysis() != customAnalysis {
		t.Error("SetAnalysisHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Analysis().(NoopAnalysisHooks); !ok {
		t.Error("Reset() should restore NoopAnalysisHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testAnalysisHooks{}
	SetAnalysisHooks(custom)

	// Setting nil should be ignored
	SetAnalysisHooks(nil)

	if Analysis() != custom {
		t.Error("SetAnalysisHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testAnalysisHooks struct{ NoopAnalysisHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
