package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher_EmptyBrokersDisabled(t *testing.T) {
	for _, brokers := range []string{"", "  ", ", ,"} {
		p := NewPublisher(brokers)
		assert.False(t, p.Enabled(), "brokers %q", brokers)
		assert.NoError(t, p.Publish(context.Background(), TypePaymentCreated, "u1", "pay-1", nil))
		assert.NoError(t, p.Close())
	}
}

func TestNewPublisher_TrimsBrokerList(t *testing.T) {
	p := NewPublisher(" localhost:9092 , localhost:9093 ")
	assert.True(t, p.Enabled())
	require.NoError(t, p.Close())
}

func TestPublishContext_OutlivesRequestCancellation(t *testing.T) {
	reqCtx, cancelReq := context.WithCancel(context.Background())
	cancelReq() // response already written, caller gone

	ctx, cancel := publishContext(reqCtx)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("publish context must not inherit the request's cancellation")
	default:
	}
}

func TestPublishContext_BoundedDeadline(t *testing.T) {
	ctx, cancel := publishContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok, "publish context must carry a deadline")
	assert.LessOrEqual(t, time.Until(deadline), publishTimeout)
}
