package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r0bb10/wallpanel-remote/internal/config"
)

type fakeLine struct {
	value int
	err   error
}

func (f *fakeLine) Value() (int, error) { return f.value, f.err }

func (f *fakeLine) SetValue(v int) error {
	if f.err != nil {
		return f.err
	}
	f.value = v
	return nil
}

func TestLogicalState(t *testing.T) {
	assert.True(t, LogicalState(1, false))
	assert.False(t, LogicalState(0, false))
	assert.True(t, LogicalState(0, true))
	assert.False(t, LogicalState(1, true))
}

func TestPinValue(t *testing.T) {
	assert.Equal(t, 1, PinValue(true, false))
	assert.Equal(t, 0, PinValue(false, false))
	assert.Equal(t, 0, PinValue(true, true))
	assert.Equal(t, 1, PinValue(false, true))
}

func TestInputActiveLow(t *testing.T) {
	line := &fakeLine{value: 1}
	in := NewInput(line, true)

	pressed, err := in.Active()
	require.NoError(t, err)
	assert.False(t, pressed, "pulled-high line is released")

	line.value = 0
	pressed, err = in.Active()
	require.NoError(t, err)
	assert.True(t, pressed)
}

func TestInputReadError(t *testing.T) {
	in := NewInput(&fakeLine{err: errors.New("ebusy")}, true)
	_, err := in.Active()
	assert.ErrorContains(t, err, "read input")
}

func TestOutputSet(t *testing.T) {
	line := &fakeLine{}
	out := NewOutput(line, true)

	require.NoError(t, out.Set(true))
	assert.Equal(t, 0, line.value)
	require.NoError(t, out.Set(false))
	assert.Equal(t, 1, line.value)
}

func TestSetupWithoutChip(t *testing.T) {
	m := NewManager()
	_, err := m.SetupInput(config.ButtonConfig{Name: "play", Pin: 17})
	assert.ErrorContains(t, err, "chip not opened")
	_, err = m.SetupOutput(config.OutputConfig{Name: "status", Pin: 22})
	assert.ErrorContains(t, err, "chip not opened")
	assert.NoError(t, m.Close())
}
