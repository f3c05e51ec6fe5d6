package remediation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AidanWarner97/server-watcher/internal/domain"
)

type mockPower struct{ mock.Mock }

func (m *mockPower) Restart(ctx context.Context, server string) error {
	return m.Called(ctx, server).Error(0)
}

func (m *mockPower) Verify(ctx context.Context, server string) error {
	return m.Called(ctx, server).Error(0)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want domain.Outcome
	}{
		{"nil", nil, domain.OutcomeSuccess},
		{"unauthorized", &APIError{StatusCode: 401}, domain.OutcomeFailure},
		{"forbidden", &APIError{StatusCode: 403}, domain.OutcomeFailure},
		{"conflict wrapped", fmt.Errorf("reset: %w", &APIError{StatusCode: 409}), domain.OutcomeFailure},
		{"not in account", fmt.Errorf("%w: 1.2.3.4", ErrServerNotFound), domain.OutcomeFailure},
		{"server error", &APIError{StatusCode: 503}, domain.OutcomeError},
		{"deadline", context.DeadlineExceeded, domain.OutcomeError},
		{"transport", errors.New("dial tcp: connection refused"), domain.OutcomeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestController_RestartSuccess(t *testing.T) {
	p := &mockPower{}
	p.On("Restart", mock.Anything, "203.0.113.7").Return(nil).Once()

	c := NewController(p, time.Second, zap.NewNop())
	att, err := c.Restart(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, att.Outcome)
	assert.Equal(t, 1, att.Number)
	assert.False(t, att.At.IsZero())
	p.AssertExpectations(t)
}

func TestController_RestartFailureNoRetry(t *testing.T) {
	p := &mockPower{}
	p.On("Restart", mock.Anything, "203.0.113.7").Return(&APIError{Op: "reset", StatusCode: 403}).Once()

	c := NewController(p, time.Second, zap.NewNop())
	att, err := c.Restart(context.Background(), "203.0.113.7")
	require.Error(t, err)
	assert.Equal(t, domain.OutcomeFailure, att.Outcome)
	assert.Contains(t, att.Detail, "403")
	p.AssertNumberOfCalls(t, "Restart", 1)
}

func TestController_CountsAttempts(t *testing.T) {
	p := &mockPower{}
	p.On("Restart", mock.Anything, mock.Anything).Return(errors.New("boom"))

	c := NewController(p, time.Second, nil)
	for i := 1; i <= 3; i++ {
		att, err := c.Restart(context.Background(), "h")
		require.Error(t, err)
		assert.Equal(t, i, att.Number)
		assert.Equal(t, domain.OutcomeError, att.Outcome)
	}
	assert.Equal(t, 3, c.Attempts())
}

// A hung API is cut off by the controller's own timeout and counts as Error.
func TestController_TimeoutIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	robot := NewRobotClient(srv.URL, "u", "p", "sw", 0)
	c := NewController(robot, 100*time.Millisecond, zap.NewNop())

	start := time.Now()
	att, err := c.Restart(context.Background(), "203.0.113.7")
	require.Error(t, err)
	assert.Equal(t, domain.OutcomeError, att.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestController_VerifyWrapsError(t *testing.T) {
	p := &mockPower{}
	p.On("Verify", mock.Anything, "h").Return(ErrServerNotFound)

	err := NewController(p, time.Second, nil).Verify(context.Background(), "h")
	require.ErrorIs(t, err, ErrServerNotFound)
}

func TestPinned_RestartsAddress(t *testing.T) {
	p := &mockPower{}
	p.On("Restart", mock.Anything, "203.0.113.7").Return(nil).Once()

	pinned := Pinned{Controller: NewController(p, time.Second, zap.NewNop()), IP: "203.0.113.7"}
	att, err := pinned.Restart(context.Background(), "box.example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSuccess, att.Outcome)
	p.AssertExpectations(t)
}
