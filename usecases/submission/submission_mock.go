package submission

import (
	"context"

	"github.com/stretchr/testify/mock"

	"agentbackend/models"
)

// MockSubmissionUseCase is a mock implementation of the SubmissionUseCase
type MockSubmissionUseCase struct {
	mock.Mock
}

func (m *MockSubmissionUseCase) Submit(
	ctx context.Context,
	user *models.User,
	name string,
	code []byte,
) (*models.Agent, bool, error) {
	args := m.Called(ctx, user, name, code)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Agent), args.Bool(1), args.Error(2)
}
