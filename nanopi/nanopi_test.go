package nanopi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) Start() error { return m.Called().Error(0) }
func (m *mockDevice) Halt() error  { return m.Called().Error(0) }

func (m *mockDevice) Write(data []byte) error {
	return m.Called(data).Error(0)
}

func (m *mockDevice) Read(data []byte) error {
	args := m.Called(len(data))
	if b, ok := args.Get(0).([]byte); ok {
		copy(data, b)
	}
	return args.Error(1)
}

func TestTransport(t *testing.T) {
	dev := new(mockDevice)
	dev.On("Write", []byte{0x72, 0x01}).Return(nil).Once()
	dev.On("Write", []byte{0xD0}).Return(nil).Once()
	dev.On("Read", 1).Return([]byte{0x61}, nil).Once()
	dev.On("Halt").Return(nil).Once()
	finalized := false
	tr := NewTransport(dev, func() error { finalized = true; return nil })

	require.NoError(t, tr.WriteRegister(context.Background(), 0x72, []byte{0x01}))
	buf := make([]byte, 1)
	require.NoError(t, tr.ReadRegister(context.Background(), 0xD0, buf))
	assert.Equal(t, byte(0x61), buf[0])
	require.NoError(t, tr.Close())
	assert.True(t, finalized)
	dev.AssertExpectations(t)
}

func TestTransportErrors(t *testing.T) {
	busErr := errors.New("i/o")
	dev := new(mockDevice)
	dev.On("Write", mock.Anything).Return(busErr)
	dev.On("Halt").Return(busErr).Once()
	tr := NewTransport(dev, nil)

	assert.ErrorIs(t, tr.WriteRegister(context.Background(), 0x74, []byte{0x4D}), busErr)
	assert.ErrorIs(t, tr.ReadRegister(context.Background(), 0x1D, make([]byte, 17)), busErr)
	dev.AssertNotCalled(t, "Read", mock.Anything)
	assert.ErrorIs(t, tr.Close(), busErr)
}
