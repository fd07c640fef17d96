package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCompositeHealthChecker(t *testing.T) {
	hc := NewCompositeHealthChecker("1.0.0")

	status := hc.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "1.0.0", status.Version)

	hc.AddCheck("storage", NewPingCheck(pinger{}))
	hc.AddCheck("redis", NewPingCheck(pinger{err: errors.New("connection refused")}))

	status = hc.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	assert.True(t, status.Checks["storage"].Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	hc := NewCompositeHealthChecker("1.0.0")
	hc.SetTimeout(20 * time.Millisecond)
	hc.SetTimeout(0)
	hc.AddCheck("storage", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	status := hc.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["storage"].Message)
}
