package cosim

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamServerSplitsOnNulDelimiter(t *testing.T) {
	s := NewStreamServer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Start(ctx, "127.0.0.1", 0))
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("running\x00paused\x00"))
	require.NoError(t, err)

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-s.Messages():
			got = append(got, msg)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	require.Equal(t, []string{"running", "paused"}, got)
}
