package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/sitestack/internal/logger"
)

func newTestRunner() *Runner {
	log := logger.NewAppLogger(&logger.Config{DevMode: true, LogLevel: "error"})
	log.InitLogger()
	return NewRunner(log)
}

func TestRunner_WaitDrainsTasks(t *testing.T) {
	runner := newTestRunner()
	var completed int32

	for i := 0; i < 5; i++ {
		runner.Go("increment", func() {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&completed, 1)
		})
	}

	require.NoError(t, runner.Wait(context.Background()))
	assert.Equal(t, int32(5), atomic.LoadInt32(&completed))
}

func TestRunner_PanicIsRecovered(t *testing.T) {
	runner := newTestRunner()

	runner.Go("boom", func() {
		panic("boom")
	})

	assert.NoError(t, runner.Wait(context.Background()))
}

func TestRunner_WaitHonoursContext(t *testing.T) {
	runner := newTestRunner()
	release := make(chan struct{})
	defer close(release)

	runner.Go("blocked", func() {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Error(t, runner.Wait(ctx))
}
