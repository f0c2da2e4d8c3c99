package hwlink

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeDialer returns a Dialer backed by net.Pipe, plus the remote end
// a test can read/write on, so Link's read/write loop can be exercised
// without a real serial port.
func pipeDialer() (Dialer, net.Conn) {
	client, remote := net.Pipe()
	return func(string, int) (Port, error) { return client, nil }, remote
}

func TestLinkConnectDeliversIncomingEvent(t *testing.T) {
	dial, remote := pipeDialer()
	l := NewLink(WithDialer(dial))
	defer l.Close()

	require.NoError(t, l.Connect("COM-FAKE", 115200))
	go func() { _, _ = remote.Write([]byte("EVT:go\n")) }()

	select {
	case in := <-l.Incoming():
		require.Equal(t, IncomingEvent, in.Kind)
		require.Equal(t, "go", in.Component)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for incoming event")
	}
}

func TestLinkSendCommandWritesFramedLine(t *testing.T) {
	dial, remote := pipeDialer()
	l := NewLink(WithDialer(dial))
	defer l.Close()

	require.NoError(t, l.Connect("COM-FAKE", 115200))

	done := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(remote).ReadString('\n')
		done <- line
	}()

	require.NoError(t, l.SendCommand("pump", 1))

	select {
	case line := <-done:
		require.Equal(t, "CMD:pump:1\n", line)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command to be written")
	}
}

func TestLinkSendCommandWhileDisconnectedErrors(t *testing.T) {
	dial, _ := pipeDialer()
	l := NewLink(WithDialer(dial))
	defer l.Close()

	err := l.SendCommand("pump", 1)
	require.Error(t, err)

	var notConnected *NotConnectedError
	require.ErrorAs(t, err, &notConnected)
}

func TestLinkConnectTwiceIsRejected(t *testing.T) {
	dial, _ := pipeDialer()
	l := NewLink(WithDialer(dial))
	defer l.Close()

	require.NoError(t, l.Connect("COM-FAKE", 115200))
	err := l.Connect("COM-FAKE", 115200)
	require.Error(t, err)

	var already *AlreadyActiveError
	require.ErrorAs(t, err, &already)
}

func TestLinkDisconnectSuppressesReconnect(t *testing.T) {
	dial, _ := pipeDialer()
	l := NewLink(WithDialer(dial), WithReconnectPeriod(10*time.Millisecond))
	require.NoError(t, l.Connect("COM-FAKE", 115200))

	l.Disconnect()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, Disconnected, l.State())
}
