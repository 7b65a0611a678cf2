package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "portal-test", false)
	if err != nil {
		t.Fatalf("NewProviders empty endpoint: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
		t.Fatal("all providers should be set for an empty endpoint")
	}
	if err := providers.Shutdown(ctx); err != nil {
		t.Errorf("shutdown should be no-op for empty endpoint, got error: %v", err)
	}
}

func TestNewProviders_WhitespaceEndpoint(t *testing.T) {
	providers, err := NewProviders(context.Background(), "   ", "portal-test", false)
	if err != nil || providers == nil {
		t.Fatalf("NewProviders whitespace endpoint = %v, %v", providers, err)
	}
}

func TestNewProviders_InvalidURL(t *testing.T) {
	for _, endpoint := range []string{"://invalid", "http://[invalid", "http://"} {
		if _, err := NewProviders(context.Background(), endpoint, "portal-test", false); err == nil {
			t.Errorf("NewProviders(%q) should return error", endpoint)
		}
	}
}

func TestNewProviders_EndpointForms(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{
		"localhost:4317",
		"http://localhost:4317",
		"https://collector.example.com:4317",
		"http://localhost:4317/v1/traces",
	} {
		t.Run(endpoint, func(t *testing.T) {
			providers, err := NewProviders(ctx, endpoint, "portal-test", true)
			if err != nil {
				t.Fatalf("NewProviders(%q): %v", endpoint, err)
			}
			if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
				t.Error("all providers should be created")
			}
			shutdownCtx, cancel := context.WithCancel(ctx)
			cancel()
			_ = providers.Shutdown(shutdownCtx)
		})
	}
}

func TestSetGlobal(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	p := &Providers{TracerProvider: tp}
	p.SetGlobal()
	if otel.GetTracerProvider() != tp {
		t.Error("SetGlobal should install the TracerProvider")
	}
}

func TestTracerAndMeter_Fallback(t *testing.T) {
	var p *Providers
	if p.Tracer() == nil || p.Meter() == nil {
		t.Fatal("nil Providers should fall back to global tracer and meter")
	}
	providers, _ := NewProviders(context.Background(), "", "portal-test", false)
	if providers.Tracer() == nil || providers.Meter() == nil {
		t.Fatal("Tracer and Meter should not be nil")
	}
}

func TestOTLPTarget(t *testing.T) {
	tests := []struct {
		endpoint     string
		override     bool
		wantTarget   string
		wantInsecure bool
	}{
		{"localhost:4317", false, "localhost:4317", true},
		{"http://localhost:4317/v1/traces", false, "localhost:4317", true},
		{"https://collector.example.com:4317", false, "collector.example.com:4317", false},
		{"https://collector.example.com:4317", true, "collector.example.com:4317", true},
	}
	for _, tt := range tests {
		target, insecure, err := otlpTarget(tt.endpoint, tt.override)
		if err != nil {
			t.Fatalf("otlpTarget(%q): %v", tt.endpoint, err)
		}
		if target != tt.wantTarget || insecure != tt.wantInsecure {
			t.Errorf("otlpTarget(%q, %v) = %q, %v; want %q, %v", tt.endpoint, tt.override, target, insecure, tt.wantTarget, tt.wantInsecure)
		}
	}
}

func TestShutdownChain_NewestFirstAndJoined(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	chain := shutdownChain{
		func(context.Context) error { order = append(order, 1); return nil },
		func(context.Context) error { order = append(order, 2); return boom },
	}
	err := chain.run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("order = %v, want [2 1]", order)
	}
}
