package codestore

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCodeStoreClient is a mock implementation of the CodeStoreClient interface
type MockCodeStoreClient struct {
	mock.Mock
}

func (m *MockCodeStoreClient) Put(ctx context.Context, path string, contents []byte) (string, error) {
	args := m.Called(ctx, path, contents)
	return args.String(0), args.Error(1)
}

func (m *MockCodeStoreClient) Get(ctx context.Context, location string) ([]byte, error) {
	args := m.Called(ctx, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
