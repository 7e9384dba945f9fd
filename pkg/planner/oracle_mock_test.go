package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

func firstAttempt(prompt string) bool {
	return !strings.Contains(prompt, "This is attempt")
}

func TestPlanOracleContract(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Complete", mock.Anything, SystemPrompt, mock.MatchedBy(firstAttempt)).
		Return(straightRoute, nil).Once()
	oracle.On("Complete", mock.Anything, SystemPrompt, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "This is attempt 2") && strings.Contains(prompt, "segment from waypoint 0 to 1")
	})).Return(safeRoute, nil).Once()

	p := newTestPlanner(t, oracle)
	result := p.Plan(context.Background(), testRequest(3))

	assert.Equal(t, StatusSafe, result.Status)
	assert.Equal(t, 2, result.Attempts)
	oracle.AssertExpectations(t)
	oracle.AssertNumberOfCalls(t, "Complete", 2)
}
