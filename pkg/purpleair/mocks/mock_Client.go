// Package mocks provides test doubles for the purpleair client.
package mocks

import (
	"context"

	purpleair "github.com/fer004/Sensores/pkg/purpleair"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// GetSensor provides a mock function with given fields: ctx, index, fields
func (_m *MockClient) GetSensor(ctx context.Context, index int, fields []string) (*purpleair.Sensor, error) {
	ret := _m.Called(ctx, index, fields)

	if len(ret) == 0 {
		panic("no return value specified for GetSensor")
	}

	var r0 *purpleair.Sensor
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, int, []string) (*purpleair.Sensor, error)); ok {
		return rf(ctx, index, fields)
	}
	if rf, ok := ret.Get(0).(func(context.Context, int, []string) *purpleair.Sensor); ok {
		r0 = rf(ctx, index, fields)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*purpleair.Sensor)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, int, []string) error); ok {
		r1 = rf(ctx, index, fields)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
