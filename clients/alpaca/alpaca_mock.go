package alpaca

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"agentbackend/clients"
)

// MockBrokerageClient is a mock implementation of the BrokerageClient interface
type MockBrokerageClient struct {
	mock.Mock
}

func (m *MockBrokerageClient) CreateAccount(
	ctx context.Context,
	profile clients.OwnerProfile,
) (*clients.BrokerageAccount, error) {
	args := m.Called(ctx, profile)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.BrokerageAccount), args.Error(1)
}

func (m *MockBrokerageClient) CreateTransfer(
	ctx context.Context,
	accountID, relationshipID string,
	amount decimal.Decimal,
) (string, error) {
	args := m.Called(ctx, accountID, relationshipID, amount)
	return args.String(0), args.Error(1)
}
