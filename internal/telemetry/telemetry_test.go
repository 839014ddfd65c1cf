package telemetry

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupExportsSpansAndMetrics(t *testing.T) {
	out := &syncBuffer{}
	shutdown, err := Setup(context.Background(), Config{Enabled: true, ServiceName: "talabin-test", Writer: out})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "settle-order")
	span.End()

	counter, err := otel.Meter("test").Int64Counter("orders.settled")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "settle-order")
	assert.Contains(t, out.String(), "orders.settled")
	assert.Contains(t, out.String(), "talabin-test")
}
