package publisher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/expense-metrics/pkg/model"
)

// A cancelled context must abort the publish before the message is handed to
// the stream; p.js is nil here, so reaching it would panic.
func TestPublishRefreshed_CancelledContext(t *testing.T) {
	p := &Publisher{subject: "evt.metrics.refreshed.v1", service: "expense-metrics"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.PublishRefreshed(ctx, model.RefreshedEvent{AccountID: 1, Pairs: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
