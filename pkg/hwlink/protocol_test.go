package hwlink

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLineEvent(t *testing.T) {
	in, ok := ParseLine("EVT:button_pressed")
	require.True(t, ok)
	require.Equal(t, IncomingEvent, in.Kind)
	require.Equal(t, "button_pressed", in.Component)
}

func TestParseLineData(t *testing.T) {
	in, ok := ParseLine("DATA:temperature:21.5")
	require.True(t, ok)
	require.Equal(t, IncomingData, in.Kind)
	require.Equal(t, "temperature", in.Component)
	require.Equal(t, 21.5, in.Value)
}

func TestParseLineDataInteger(t *testing.T) {
	in, ok := ParseLine("DATA:counter:42")
	require.True(t, ok)
	require.Equal(t, 42.0, in.Value)
}

func TestParseLineRejectsMalformed(t *testing.T) {
	cases := []string{"", "garbage", "DATA:onlyname", "DATA:temp:notanumber", "EVT:"}
	for _, c := range cases {
		_, ok := ParseLine(c)
		require.False(t, ok, "expected %q to be rejected", c)
	}
}

func TestFormatCommand(t *testing.T) {
	require.Equal(t, "CMD:pump:1\n", FormatCommand("pump", 1))
	require.Equal(t, "CMD:setpoint:21.5\n", FormatCommand("setpoint", 21.5))
}
