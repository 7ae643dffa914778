package lan

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/ppmslab/ppms"
)

// serve answers each GETDAT? line with a fixed reply and records the rest.
func serve(t *testing.T, reply string) (addr string, got chan string) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	got = make(chan string, 16)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		sc := bufio.NewScanner(c)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			got <- line
			if strings.HasPrefix(line, "GETDAT?") {
				c.Write([]byte(reply + "\r\n"))
			}
		}
	}()
	return ln.Addr().String(), got
}

func TestPPMSOverTCP(t *testing.T) {
	addr, got := serve(t, "3,1234.5,1,180.01")
	c, err := Dial(context.Background(), addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	client := ppms.New(c)
	require.NoError(t, client.SetTemperature(180, 10, ppms.FastSettle))
	require.Equal(t, "TEMP 180,10,0", <-got)

	temp, st, err := client.Temperature()
	require.NoError(t, err)
	require.Equal(t, "GETDAT? 3", <-got)
	require.Equal(t, 180.01, temp)
	require.Equal(t, ppms.TempStable, st)
}

func TestQueryTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(200 * time.Millisecond)
		}
	}()

	c, err := Dial(context.Background(), ln.Addr().String(), 20*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Query("GETDAT? 1")
	require.ErrorContains(t, err, "GETDAT? 1: read")
}

// silent accepts one connection and discards everything sent on it.
func silent(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(io.Discard, c)
	}()
	return ln.Addr().String()
}

func TestRawReadTimeout(t *testing.T) {
	c, err := Dial(context.Background(), silent(t), 50*time.Millisecond)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("++read eoi\n"))
	require.NoError(t, err)
	start := time.Now()
	_, err = c.Read(make([]byte, 64))
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestDialFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Dial(ctx, "127.0.0.1:1", time.Second)
	require.Error(t, err)
}
