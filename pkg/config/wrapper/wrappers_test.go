package wrapper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BillArmsty/rusty-rocket/pkg/config"
	"github.com/BillArmsty/rusty-rocket/pkg/config/memory"
)

func TestUint64Config(t *testing.T) {
	ctx := context.Background()

	defaultValue := uint64(5)
	overridenValue := uint64(7)
	mock := memory.NewConfig(nil)
	wrapper := NewUint64Config(mock, defaultValue)

	// Return the default value when no override is set
	val, err := wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)
	assert.Equal(t, defaultValue, wrapper.Get(ctx))

	// The overriden value is returned when set
	mock.SetValue(overridenValue)
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, overridenValue, val)
	assert.Equal(t, overridenValue, wrapper.Get(ctx))

	// The last observed config value is returned on error
	mock.InduceErrors()
	val, err = wrapper.GetSafe(ctx)
	require.Error(t, err)
	assert.Equal(t, overridenValue, val)
	assert.Equal(t, overridenValue, wrapper.Get(ctx))

	// The default value is returned when the override no longer has a value
	mock.StopInducingErrors()
	mock.ClearValue()
	val, err = wrapper.GetSafe(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaultValue, val)

	// Return an unsupported source value type
	mock.SetValue("not supported")
	val, err = wrapper.GetSafe(ctx)
	assert.Equal(t, ErrUnsuportedConversion, err)
	assert.Equal(t, defaultValue, val)

	// Byte values are parsed, and parse failures keep the last value
	mock.SetValue([]byte("42"))
	assert.EqualValues(t, 42, wrapper.Get(ctx))
	mock.SetValue([]byte("-1"))
	val, err = wrapper.GetSafe(ctx)
	assert.Error(t, err)
	assert.EqualValues(t, 42, val)
	mock.SetValue(-1)
	_, err = wrapper.GetSafe(ctx)
	assert.Error(t, err)

	wrapper.Shutdown()
	_, err = wrapper.GetSafe(ctx)
	assert.Equal(t, config.ErrShutdown, err)
}

func TestDurationConfig(t *testing.T) {
	ctx := context.Background()

	mock := memory.NewConfig(nil)
	wrapper := NewDurationConfig(mock, 5*time.Second)
	assert.Equal(t, 5*time.Second, wrapper.Get(ctx))

	for _, tc := range []struct {
		raw      interface{}
		expected time.Duration
	}{
		{[]byte("1m30s"), 90 * time.Second},
		{[]byte("3"), 3 * time.Second},
		{time.Millisecond, time.Millisecond},
	} {
		mock.SetValue(tc.raw)
		val, err := wrapper.GetSafe(ctx)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, val)
	}

	mock.SetValue([]byte("soon"))
	val, err := wrapper.GetSafe(ctx)
	assert.Error(t, err)
	assert.Equal(t, time.Millisecond, val)
}

func TestScalarConfigs(t *testing.T) {
	ctx := context.Background()

	boolMock := memory.NewConfig(nil)
	boolConfig := NewBoolConfig(boolMock, true)
	assert.True(t, boolConfig.Get(ctx))
	boolMock.SetValue([]byte("false"))
	assert.False(t, boolConfig.Get(ctx))
	boolMock.SetValue(true)
	assert.True(t, boolConfig.Get(ctx))
	boolMock.SetValue(1.5)
	_, err := boolConfig.GetSafe(ctx)
	assert.Equal(t, ErrUnsuportedConversion, err)

	floatMock := memory.NewConfig(nil)
	floatConfig := NewFloat64Config(floatMock, 1.0)
	assert.Equal(t, 1.0, floatConfig.Get(ctx))
	floatMock.SetValue([]byte("0.25"))
	assert.Equal(t, 0.25, floatConfig.Get(ctx))
	floatMock.SetValue(3)
	assert.Equal(t, 3.0, floatConfig.Get(ctx))

	stringMock := memory.NewConfig(nil)
	stringConfig := NewStringConfig(stringMock, "default")
	assert.Equal(t, "default", stringConfig.Get(ctx))
	stringMock.SetValue([]byte("bytes"))
	assert.Equal(t, "bytes", stringConfig.Get(ctx))
	stringMock.SetValue("string")
	assert.Equal(t, "string", stringConfig.Get(ctx))
}
