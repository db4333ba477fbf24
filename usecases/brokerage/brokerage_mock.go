package brokerage

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"agentbackend/models"
)

// MockBrokerageUseCase is a mock implementation of the BrokerageUseCase
type MockBrokerageUseCase struct {
	mock.Mock
}

func (m *MockBrokerageUseCase) BeginAccountCreation(
	ctx context.Context,
	user *models.User,
	agentID string,
) (*models.Agent, error) {
	args := m.Called(ctx, user, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockBrokerageUseCase) BeginFunding(
	ctx context.Context,
	user *models.User,
	agentID string,
	amount decimal.Decimal,
) (*models.Agent, error) {
	args := m.Called(ctx, user, agentID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockBrokerageUseCase) OnAccountCallback(ctx context.Context, agentID string) error {
	args := m.Called(ctx, agentID)
	return args.Error(0)
}

func (m *MockBrokerageUseCase) OnFundingCallback(ctx context.Context, agentID, transferID string) error {
	args := m.Called(ctx, agentID, transferID)
	return args.Error(0)
}
