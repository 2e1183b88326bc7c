package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/model"
)

type statusWrite struct {
	status model.ScreenshotStatus
	errMsg string
}

type recordingStatus struct {
	mu     sync.Mutex
	writes map[int64][]statusWrite
	fail   bool
}

func (r *recordingStatus) UpdateScreenshotStatus(_ context.Context, id int64, status model.ScreenshotStatus, _ int64, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writes == nil {
		r.writes = map[int64][]statusWrite{}
	}
	r.writes[id] = append(r.writes[id], statusWrite{status: status, errMsg: errMsg})
	if r.fail {
		return errors.New("store down")
	}
	return nil
}

func targets(n int) []Target {
	out := make([]Target, n)
	for i := range out {
		id := int64(i + 1)
		out[i] = Target{
			Screenshot: model.Screenshot{ID: id, Width: 640, Height: 480, FilePath: "shots/s.png"},
			ImageURL:   "https://signed/s.png",
		}
	}
	return out
}

type runnerFunc func(ctx context.Context, runID string, batchID int64, t Target) (*ScreenshotResult, error)

func (f runnerFunc) Run(ctx context.Context, runID string, batchID int64, t Target) (*ScreenshotResult, error) {
	return f(ctx, runID, batchID, t)
}

func TestOrchestrator_FaultIsolation(t *testing.T) {
	const failing = int64(3)
	gw := &scriptedGateway{respond: func(c gateway.Call) (string, error) {
		if c.Stage == gateway.StageElementDiscovery && *c.Track.ScreenshotID == failing {
			return "", errors.New("provider 500")
		}
		return pipelineReplies(c)
	}}
	status := &recordingStatus{}
	orch := NewOrchestrator(NewUnit(gw, testCatalog(t), nil, UnitConfig{}), status, 2)

	results := orch.Run(context.Background(), "run", 1, targets(5))
	require.Len(t, results, 5)
	assert.Equal(t, 4, results.Succeeded())
	assert.Equal(t, 1, results.Failed())

	for id, o := range results {
		if id == failing {
			require.Error(t, o.Err)
			assert.Nil(t, o.Result)
			assert.Contains(t, o.Err.Error(), "provider 500")
			continue
		}
		require.NoError(t, o.Err, "screenshot %d", id)
		assert.Len(t, o.Result.Detections.Items, 1)
	}

	assert.Equal(t, model.ScreenshotStatusProcessing, status.writes[failing][0].status)
	last := status.writes[failing][1]
	assert.Equal(t, model.ScreenshotStatusError, last.status)
	assert.Contains(t, last.errMsg, "provider 500")
	assert.Equal(t, model.ScreenshotStatusCompleted, status.writes[1][1].status)
}

func TestOrchestrator_ConcurrencyBound(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32
	runner := runnerFunc(func(ctx context.Context, _ string, _ int64, t Target) (*ScreenshotResult, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &ScreenshotResult{ScreenshotID: t.Screenshot.ID}, nil
	})

	results := NewOrchestrator(runner, nil, limit).Run(context.Background(), "run", 1, targets(12))
	assert.Equal(t, 12, results.Succeeded())
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Positive(t, peak.Load())
}

func TestOrchestrator_PanicIsIsolated(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _ string, _ int64, t Target) (*ScreenshotResult, error) {
		if t.Screenshot.ID == 2 {
			panic("nil map write")
		}
		return &ScreenshotResult{ScreenshotID: t.Screenshot.ID}, nil
	})
	status := &recordingStatus{}

	results := NewOrchestrator(runner, status, 4).Run(context.Background(), "run", 1, targets(3))
	assert.Equal(t, 2, results.Succeeded())
	require.Error(t, results[2].Err)
	assert.Contains(t, results[2].Err.Error(), "unit panic: nil map write")
	assert.Equal(t, model.ScreenshotStatusError, status.writes[2][1].status)
}

func TestOrchestrator_StatusWriteFailureIsNotFatal(t *testing.T) {
	runner := runnerFunc(func(_ context.Context, _ string, _ int64, t Target) (*ScreenshotResult, error) {
		return &ScreenshotResult{ScreenshotID: t.Screenshot.ID}, nil
	})
	results := NewOrchestrator(runner, &recordingStatus{fail: true}, 1).Run(context.Background(), "run", 1, targets(2))
	assert.Equal(t, 2, results.Succeeded())
}

func TestOrchestrator_EmptyBatch(t *testing.T) {
	results := NewOrchestrator(runnerFunc(nil), nil, 0).Run(context.Background(), "run", 1, nil)
	assert.Empty(t, results)
}

func TestErrorText_CutsOnRuneBoundary(t *testing.T) {
	short := errors.New("detector timeout")
	assert.Equal(t, "detector timeout", ErrorText(short))

	// 999 ASCII bytes put a 3-byte rune across the 1000-byte limit.
	long := errors.New(strings.Repeat("x", 999) + strings.Repeat("界", 10))
	got := ErrorText(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", 999), got)

	runes := errors.New(strings.Repeat("界", 400))
	got = ErrorText(runes)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 1000)
	assert.Equal(t, 333, utf8.RuneCountInString(got))
}
