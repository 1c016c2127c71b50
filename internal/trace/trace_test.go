package trace

import (
	"context"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"discard", Config{Service: "svc", Exporter: ExporterDiscard, SampleFraction: 1}, false},
		{"default is discard", Config{Service: "svc"}, false},
		{"otlp without endpoint", Config{Service: "svc", Exporter: ExporterOTLP}, true},
		{"unknown", Config{Service: "svc", Exporter: "zipkin"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			p, err := NewProvider(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("got err %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			_, span := p.Tracer("test").Start(ctx, "span")
			span.End()

			if err := p.Shutdown(ctx); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
}
