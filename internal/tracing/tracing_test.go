package tracing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aristath/etlrun/internal/config"
)

func TestInstallRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p, err := Install("etlrun-test", "0.0.1", exporter)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	ctx, parent := Start(context.Background(), "run", attribute.String("run.id", "r1"))
	_, child := Start(ctx, "task")
	End(child, errors.New("boom"))
	End(parent, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	assert.Equal(t, codes.Error, byName["task"].Status.Code)
	assert.Equal(t, codes.Ok, byName["run"].Status.Code)
	assert.Equal(t, byName["run"].SpanContext.SpanID(), byName["task"].Parent.SpanID())
	assert.Contains(t, byName["run"].Attributes, attribute.String("run.id", "r1"))
}

func TestSetupFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	p, err := Setup(config.TracingConfig{Enabled: true, ServiceName: "etlrun", Output: path}, "dev")
	require.NoError(t, err)

	_, span := Start(context.Background(), "file-span")
	End(span, nil)
	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "file-span")
}

func TestSetupDisabled(t *testing.T) {
	p, err := Setup(config.TracingConfig{Enabled: false}, "dev")
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}
