package gpib

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/ppmslab/lib/lan"
)

// fakeAdapter records everything written and serves canned replies.
type fakeAdapter struct {
	written bytes.Buffer
	replies *strings.Reader
}

func newFakeAdapter(replies ...string) *fakeAdapter {
	return &fakeAdapter{replies: strings.NewReader(strings.Join(replies, ""))}
}

func (f *fakeAdapter) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakeAdapter) Read(p []byte) (int, error)  { return f.replies.Read(p) }

func (f *fakeAdapter) lines() []string {
	return strings.Split(strings.TrimSuffix(f.written.String(), "\n"), "\n")
}

func TestNewControllerInit(t *testing.T) {
	fa := newFakeAdapter()
	_, err := NewController(fa)
	require.NoError(t, err)
	require.Equal(t, []string{
		"++verbose 0",
		"++savecfg 0",
		"++mode 1",
		"++auto 0",
		"++eoi 1",
		"++eos 0",
		"++read_tmo_ms 500",
		"++eot_char 10",
		"++eot_enable 1",
		"++savecfg 1",
	}, fa.lines())
}

func TestNewControllerAR488(t *testing.T) {
	fa := newFakeAdapter()
	_, err := NewController(fa, WithAR488(), WithGPIBTermination(AppendLF))
	require.NoError(t, err)
	lines := fa.lines()
	require.Equal(t, "++mode 1", lines[0])
	require.Contains(t, lines, "++eos 2")
	require.NotContains(t, lines, "++savecfg 1")
}

func TestNewControllerBadTimeout(t *testing.T) {
	_, err := NewController(newFakeAdapter(), WithReadTimeout(0))
	require.Error(t, err)
}

func TestInstrumentAddressValidation(t *testing.T) {
	c, err := NewController(newFakeAdapter())
	require.NoError(t, err)

	_, err = c.Instrument(31)
	require.Error(t, err)
	_, err = c.Instrument(5, WithSecondaryAddress(95))
	require.Error(t, err)
	inst, err := c.Instrument(5, WithSecondaryAddress(96))
	require.NoError(t, err)
	pad, sad := inst.Address()
	require.Equal(t, 5, pad)
	require.Equal(t, 96, sad)
}

func TestReaddressOnlyWhenNeeded(t *testing.T) {
	fa := newFakeAdapter("0.1,0.2\n", "-1.5E-6\n")
	c, err := NewController(fa)
	require.NoError(t, err)
	fa.written.Reset()

	lockin, err := c.Instrument(8)
	require.NoError(t, err)
	meter, err := c.Instrument(7)
	require.NoError(t, err)

	require.NoError(t, lockin.Command("FREQ %g", 1713.0))
	require.NoError(t, lockin.Command("SLVL 0.01"))
	s, err := lockin.Query("SNAP?1,2")
	require.NoError(t, err)
	require.Equal(t, "0.1,0.2\n", s)

	s, err = meter.Query(":READ?")
	require.NoError(t, err)
	require.Equal(t, "-1.5E-6\n", s)

	require.Equal(t, []string{
		"++addr 8",
		"FREQ 1713",
		"SLVL 0.01",
		"SNAP?1,2",
		"++read eoi",
		"++addr 7",
		":READ?",
		"++read eoi",
	}, fa.lines())
}

func TestInstrumentClearAndLocal(t *testing.T) {
	fa := newFakeAdapter()
	c, err := NewController(fa)
	require.NoError(t, err)
	fa.written.Reset()

	inst, err := c.Instrument(12, WithClear())
	require.NoError(t, err)
	require.NoError(t, inst.Local())
	require.Equal(t, []string{"++addr 12", "++clr", "++loc"}, fa.lines())
}

func TestSerialPoll(t *testing.T) {
	fa := newFakeAdapter("16\n")
	c, err := NewController(fa)
	require.NoError(t, err)
	inst, err := c.Instrument(3)
	require.NoError(t, err)
	sb, err := inst.SerialPoll()
	require.NoError(t, err)
	require.Equal(t, byte(16), sb)
}

func TestControllerQueries(t *testing.T) {
	fa := newFakeAdapter(
		"Prologix GPIB-USB Controller version 6.107\n",
		"0\n",
		"500\n",
		"1\n",
		"4 101\n",
	)
	c, err := NewController(fa)
	require.NoError(t, err)

	ver, err := c.Version()
	require.NoError(t, err)
	require.Contains(t, ver, "version 6.107")

	auto, err := c.ReadAfterWrite()
	require.NoError(t, err)
	require.False(t, auto)

	tmo, err := c.ReadTimeout()
	require.NoError(t, err)
	require.Equal(t, 500, tmo)

	srq, err := c.ServiceRequest()
	require.NoError(t, err)
	require.True(t, srq)

	pad, sad, err := c.InstrumentAddress()
	require.NoError(t, err)
	require.Equal(t, 4, pad)
	require.Equal(t, 101, sad)
}

func TestQueryEOF(t *testing.T) {
	// the reply ends without an EOT character
	c, err := NewController(newFakeAdapter("1.0"))
	require.NoError(t, err)
	inst, err := c.Instrument(8)
	require.NoError(t, err)

	s, err := inst.Query("OUTP?1")
	require.NoError(t, err)
	require.Equal(t, "1.0", s)

	_, err = inst.Query("OUTP?1")
	require.ErrorIs(t, err, io.EOF)
}

func TestQueryOverSilentLAN(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
	}()

	conn, err := lan.Dial(context.Background(), ln.Addr().String(), 200*time.Millisecond)
	require.NoError(t, err)
	defer conn.Close()
	c, err := NewController(conn, WithReadTimeout(100*time.Millisecond))
	require.NoError(t, err)
	inst, err := c.Instrument(8)
	require.NoError(t, err)

	start := time.Now()
	_, err = inst.Query("SNAP?1,2")
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestGpibTermString(t *testing.T) {
	require.Equal(t, `Append LF (\n) to instrument commands`, AppendLF.String())
}
