package ingest

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dataq/internal/pipeline"
	"github.com/banshee-data/dataq/internal/scene"
	"github.com/banshee-data/dataq/internal/serialmux"
	"github.com/banshee-data/dataq/internal/timeutil"
)

func newFeed(s *sink) *Feed {
	return NewFeed(NewDecoder(scene.Rotate0, scene.COGCenter), s, timeutil.NewMockClock(t0))
}

func TestFeed_Lines(t *testing.T) {
	s := &sink{}
	f := newFeed(s)

	data := []byte("{\"delete\":\"1\"}\n\nnot json\n{\"detections\":[]}\n{\"delete\":\"2\"}")
	require.NoError(t, f.Lines(context.Background(), data, time.Time{}, false))

	got := s.all()
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Detections[0].ID)
	assert.Equal(t, t0, got[0].Time, "stamped by the clock")
	assert.Equal(t, "2", got[1].Detections[0].ID)
	assert.Equal(t, Stats{Lines: 4, Batches: 2, Malformed: 1}, f.Stats())
}

func TestFeed_DropsWhenQueueFull(t *testing.T) {
	s := &sink{full: true}
	f := newFeed(s)

	require.NoError(t, f.Line(context.Background(), []byte(`{"delete":"1"}`), t0, false))
	assert.Equal(t, uint64(1), f.Stats().Dropped)

	// lossless submission ignores the full flag
	require.NoError(t, f.Line(context.Background(), []byte(`{"delete":"1"}`), t0, true))
	assert.Len(t, s.all(), 1)
}

type errSink struct{ err error }

func (s errSink) Submit(context.Context, pipeline.Batch) error { return s.err }
func (s errSink) TrySubmit(pipeline.Batch) error                { return s.err }

func TestFeed_SinkErrorStops(t *testing.T) {
	closed := errors.New("closed")
	f := NewFeed(NewDecoder(scene.Rotate0, scene.COGCenter), errSink{closed}, nil)
	err := f.Line(context.Background(), []byte(`{"delete":"1"}`), t0, true)
	assert.ErrorIs(t, err, closed)
}

func TestFeed_Serial(t *testing.T) {
	s := &sink{}
	f := newFeed(s)
	port := serialmux.NewPipePort()
	mux := serialmux.NewSerialMux(port)

	done := make(chan error, 1)
	go func() { done <- f.Serial(context.Background(), mux) }()
	go mux.Monitor(context.Background())

	// Subscribe happens inside Serial; wait for it before feeding.
	require.Eventually(t, func() bool {
		return port.Feed(`{"delete":"9"}`) == nil && len(s.all()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mux.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serial did not return after the mux closed")
	}
	assert.Equal(t, "9", s.all()[0].Detections[0].ID)
}

func TestFeed_ListenUDP(t *testing.T) {
	s := &sink{}
	f := newFeed(s)
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.ListenUDP(ctx, UDPConfig{Conn: conn}) }()

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()
	_, err = client.Write([]byte("{\"delete\":\"1\"}\n{\"delete\":\"2\"}\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(s.all()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ListenUDP did not stop")
	}
}

func writePacket(t *testing.T, w *pcapgo.Writer, ts time.Time, port uint16, payload string) {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{192, 168, 1, 10},
		DstIP:    net.IP{192, 168, 1, 20},
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(port)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	data := buf.Bytes()
	require.NoError(t, w.WritePacket(gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}, data))
}

func TestFeed_ReplayPCAP(t *testing.T) {
	var capture bytes.Buffer
	w := pcapgo.NewWriter(&capture)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	writePacket(t, w, t0, 2115, `{"detections":[{"id":"1","x":10,"y":10,"w":20,"h":20}]}`)
	writePacket(t, w, t0.Add(time.Second), 9999, `{"delete":"ignored"}`)
	writePacket(t, w, t0.Add(2*time.Second), 2115, `{"timestamp":1700000005000,"delete":"1"}`)

	s := &sink{}
	f := newFeed(s)
	require.NoError(t, f.ReplayPCAP(context.Background(), &capture, ReplayOptions{Port: 2115}))

	got := s.all()
	require.Len(t, got, 2)
	assert.Equal(t, t0.UnixMilli(), got[0].Time.UnixMilli(), "capture time stamps the frame")
	assert.Equal(t, int64(1700000005000), got[1].Time.UnixMilli(), "frame timestamp wins")
	assert.Equal(t, "1", got[1].Detections[0].ID)
}

func TestFeed_ReplayPCAP_BadHeader(t *testing.T) {
	f := newFeed(&sink{})
	err := f.ReplayPCAP(context.Background(), bytes.NewReader([]byte("nope")), ReplayOptions{})
	assert.Error(t, err)
}
