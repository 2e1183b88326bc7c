package gateway

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/ux-extract/internal/model"
)

// --- Capability Mock ---

type mockCapability struct {
	mock.Mock
	provider string
	model    string
}

func (m *mockCapability) Call(ctx context.Context, req Request) (*Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

func (m *mockCapability) Provider() string { return m.provider }

func (m *mockCapability) Model() string { return m.model }

// preparingCapability rewrites the image during Prepare after a delay.
type preparingCapability struct {
	mockCapability
	delay time.Duration
	err   error
}

func (p *preparingCapability) Prepare(_ context.Context, req Request) (Request, error) {
	time.Sleep(p.delay)
	if p.err != nil {
		return req, p.err
	}
	req.ImageURL = "data:image/png;base64,AAAA"
	return req, nil
}

// --- AuditSink Mock ---

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) AppendPromptLog(ctx context.Context, log *model.PromptLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}
