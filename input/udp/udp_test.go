package udp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/metric"
	"github.com/c360/eventflow/pkg/retry"
	"github.com/c360/eventflow/value"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	return cfg
}

// running starts src and returns its output channel, a client socket
// connected to it, and a stop function that waits for Run to return.
func running(t *testing.T, src *Source, acks bool) (<-chan event.EventArray, *net.UDPConn, func() error) {
	t.Helper()
	ch := make(chan event.EventArray, 16)
	sender := engine.NewSourceSender(engine.NewOutput("udp_in", ch), "udp_in", "udp")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, engine.SourceContext{ID: "udp_in", Out: sender, Acknowledgements: acks})
	}()

	require.Eventually(t, func() bool { return src.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	client, err := net.DialUDP("udp", nil, src.Addr().(*net.UDPAddr))
	require.NoError(t, err)

	var (
		once    sync.Once
		stopErr error
	)
	stop := func() error {
		once.Do(func() {
			cancel()
			_ = client.Close()
			select {
			case stopErr = <-done:
			case <-time.After(5 * time.Second):
				stopErr = errors.New("source did not stop")
			}
		})
		return stopErr
	}
	t.Cleanup(func() { _ = stop() })
	return ch, client, stop
}

func receive(t *testing.T, ch <-chan event.EventArray) event.LogArray {
	t.Helper()
	select {
	case batch := <-ch:
		logs, ok := batch.(event.LogArray)
		require.True(t, ok, "want LogArray, got %T", batch)
		return logs
	case <-time.After(5 * time.Second):
		t.Fatal("no batch received")
		return nil
	}
}

func field(t *testing.T, e *event.LogEvent, path string) string {
	t.Helper()
	s, ok := e.GetString(value.MustParsePath(path))
	require.True(t, ok, "field %s missing", path)
	return s
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with address", func(*Config) {}, false},
		{"missing address", func(c *Config) { c.Address = "" }, true},
		{"address without port", func(c *Config) { c.Address = "localhost" }, true},
		{"zero max_length", func(c *Config) { c.MaxLength = 0 }, true},
		{"negative receive buffer", func(c *Config) { c.ReceiveBufferBytes = -1 }, true},
		{"unknown framing", func(c *Config) { c.Framing = "octet_counting" }, true},
		{"unknown decoding", func(c *Config) { c.Decoding = "protobuf" }, true},
		{"bad host key", func(c *Config) { c.HostKey = "a[" }, true},
		{"wildcard port key", func(c *Config) { c.PortKey = "peer.*" }, true},
		{"empty host key", func(c *Config) { c.HostKey = "" }, false},
		{"nested host key", func(c *Config) { c.HostKey = "peer.host" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_MaxLengthCappedByReceiveBuffer(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 102400, cfg.maxLength())
	cfg.ReceiveBufferBytes = 4096
	assert.Equal(t, 4096, cfg.maxLength())
	cfg.ReceiveBufferBytes = 1 << 20
	assert.Equal(t, 102400, cfg.maxLength())
}

func TestSplitFrames(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		framing string
		want    []string
	}{
		{"bytes keeps newlines", "a\nb", FramingBytes, []string{"a\nb"}},
		{"bytes empty", "", FramingBytes, nil},
		{"newline", "a\nb\n", FramingNewline, []string{"a", "b"}},
		{"newline skips blanks", "a\n\n\r\nb", FramingNewline, []string{"a", "b"}},
		{"newline strips cr", "a\r\nb\r\n", FramingNewline, []string{"a", "b"}},
		{"newline unterminated tail", "a\nbc", FramingNewline, []string{"a", "bc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, f := range splitFrames([]byte(tt.data), tt.framing) {
				got = append(got, string(f))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSource_DatagramBecomesEvent(t *testing.T) {
	src, err := NewSource(testConfig(), Deps{ID: "udp_in"})
	require.NoError(t, err)
	ch, client, stop := running(t, src, false)

	_, err = client.Write([]byte("hello world"))
	require.NoError(t, err)

	batch := receive(t, ch)
	require.Len(t, batch, 1)
	e := batch[0]

	assert.Equal(t, "hello world", field(t, e, event.MessageKey))
	assert.Equal(t, "127.0.0.1", field(t, e, "host"))
	assert.Equal(t, SourceType, field(t, e, "source_type"))

	port := e.Get(value.MustParsePath("port"))
	require.NotNil(t, port)
	n, ok := port.AsNumber()
	require.True(t, ok)
	assert.Equal(t, float64(client.LocalAddr().(*net.UDPAddr).Port), n)

	require.NotNil(t, e.Get(value.MustParsePath("timestamp")))
	assert.Equal(t, "udp_in", e.Metadata().SourceID())
	assert.Equal(t, 1, e.Metadata().Finalizers().Len())

	batch.Finalize(event.Delivered)
	assert.NoError(t, stop())
}

func TestSource_NewlineFramingAndTruncation(t *testing.T) {
	cfg := testConfig()
	cfg.Framing = FramingNewline
	cfg.MaxLength = 8
	src, err := NewSource(cfg, Deps{})
	require.NoError(t, err)
	ch, client, stop := running(t, src, false)

	_, err = client.Write([]byte("a\nb\nc"))
	require.NoError(t, err)
	batch := receive(t, ch)
	require.Len(t, batch, 3)
	assert.Equal(t, "c", field(t, batch[2], event.MessageKey))

	// Only max_length+1 bytes are read, so the partial "c" frame is discarded.
	_, err = client.Write([]byte("one\ntwo\nccc"))
	require.NoError(t, err)
	batch = receive(t, ch)
	require.Len(t, batch, 2)
	assert.Equal(t, "one", field(t, batch[0], event.MessageKey))
	assert.Equal(t, "two", field(t, batch[1], event.MessageKey))

	assert.NoError(t, stop())
}

func TestSource_JSONDecodingKeepsExistingFields(t *testing.T) {
	cfg := testConfig()
	cfg.Decoding = DecodingJSON
	src, err := NewSource(cfg, Deps{})
	require.NoError(t, err)
	ch, client, stop := running(t, src, false)

	_, err = client.Write([]byte("not json"))
	require.NoError(t, err)
	_, err = client.Write([]byte(`{"host":"sensor-7","level":"warn"}`))
	require.NoError(t, err)

	batch := receive(t, ch)
	require.Len(t, batch, 1)
	assert.Equal(t, "sensor-7", field(t, batch[0], "host"))
	assert.Equal(t, "warn", field(t, batch[0], "level"))
	assert.Nil(t, batch[0].Get(value.MustParsePath(event.MessageKey)))

	assert.NoError(t, stop())
}

func TestSource_AcknowledgementsWaitForOutcome(t *testing.T) {
	src, err := NewSource(testConfig(), Deps{})
	require.NoError(t, err)
	ch, client, stop := running(t, src, true)

	_, err = client.Write([]byte("first"))
	require.NoError(t, err)
	_, err = client.Write([]byte("second"))
	require.NoError(t, err)

	first := receive(t, ch)
	select {
	case <-ch:
		t.Fatal("second datagram sent before the first was acknowledged")
	case <-time.After(200 * time.Millisecond):
	}

	first.Finalize(event.Delivered)
	second := receive(t, ch)
	assert.Equal(t, "second", field(t, second[0], event.MessageKey))
	second.Finalize(event.Delivered)

	assert.NoError(t, stop())
}

func TestSource_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	src, err := NewSource(testConfig(), Deps{ID: "udp_in", MetricsRegistry: registry})
	require.NoError(t, err)

	_, err = NewSource(testConfig(), Deps{ID: "udp_in", MetricsRegistry: registry})
	require.Error(t, err, "a second source with the same id must not share metrics")

	ch, client, stop := running(t, src, false)
	_, err = client.Write([]byte("12345"))
	require.NoError(t, err)
	receive(t, ch).Finalize(event.Delivered)
	require.NoError(t, stop())

	assert.Equal(t, 1.0, testutil.ToFloat64(src.metrics.datagramsReceived))
	assert.Equal(t, 5.0, testutil.ToFloat64(src.metrics.bytesReceived))
}

func TestSource_BindFailure(t *testing.T) {
	taken, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig()
	cfg.Address = taken.LocalAddr().String()
	src, err := NewSource(cfg, Deps{})
	require.NoError(t, err)
	src.retry = retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	err = src.Run(context.Background(), engine.SourceContext{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestRegister(t *testing.T) {
	registry := component.NewRegistry()
	require.NoError(t, Register(registry))

	src, err := registry.CreateSource("udp", "syslog_in",
		component.Options{"address": "127.0.0.1:0", "framing": "newline_delimited"},
		component.Dependencies{})
	require.NoError(t, err)
	assert.IsType(t, &Source{}, src)

	_, err = registry.CreateSource("udp", "syslog_in", component.Options{"adress": "127.0.0.1:0"},
		component.Dependencies{})
	assert.Error(t, err)
}
