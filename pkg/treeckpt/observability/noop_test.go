package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoop(t *testing.T) {
	ctx := context.Background()

	assert.NotPanics(t, func() {
		var m MetricsRecorder = NoopMetrics{}
		m.RecordSave(ctx, 1, time.Second, true, errors.New("x"))
		m.RecordRestore(ctx, time.Second, nil)
		m.RecordPrune(ctx, 1, 1)
		m.RecordRecovery(ctx, 1)
	})

	var sm SpanManager = NoopSpanManager{}
	got, span := sm.StartSaveSpan(ctx, "/ckpt", 1)
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())
	sm.EndSpanWithError(span, nil)

	got, span = sm.StartRestoreSpan(ctx, "/ckpt", 1)
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())
}
