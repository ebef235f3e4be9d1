package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Equal(t, "req-42", RequestID(WithRequestID(ctx, "req-42")))
}

func TestNow(t *testing.T) {
	ctx := context.Background()
	before := time.Now()
	assert.False(t, Now(ctx).Before(before), "falls back to the wall clock")

	pinned := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, pinned, Now(WithTime(ctx, pinned)))
}
