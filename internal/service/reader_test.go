package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/septivank/solarlog-reader/internal/config"
	"github.com/septivank/solarlog-reader/internal/ingress"
	"github.com/septivank/solarlog-reader/internal/metrics"
	"github.com/septivank/solarlog-reader/internal/reading"
	"github.com/septivank/solarlog-reader/internal/solarlog"
	"github.com/septivank/solarlog-reader/tools/timeparser"
)

const summerPayload = `{"801":{"170":{"100":"15.08.18 10:58:45","101":1234,"102":1300,"116":734}}}`

type fakeDevice struct {
	calls atomic.Int32
	fetch func() (solarlog.Payload, error)
}

func (f *fakeDevice) FetchLiveData(ctx context.Context) (solarlog.Payload, error) {
	f.calls.Add(1)
	return f.fetch()
}

type fakePublisher struct {
	mu       sync.Mutex
	readings []reading.Reading
	outcome  ingress.Outcome
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, r reading.Reading) (ingress.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, r)
	return f.outcome, f.err
}

func (f *fakePublisher) published() []reading.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reading.Reading(nil), f.readings...)
}

type fakeForwarder struct {
	name    string
	err     error
	panics  bool
	forward atomic.Int32
}

func (f *fakeForwarder) Name() string { return f.name }

func (f *fakeForwarder) Forward(ctx context.Context, r reading.Reading) error {
	f.forward.Add(1)
	if f.panics {
		panic("sink exploded")
	}
	return f.err
}

func payloadOf(t *testing.T, body string) func() (solarlog.Payload, error) {
	return func() (solarlog.Payload, error) {
		var p solarlog.Payload
		require.NoError(t, json.Unmarshal([]byte(body), &p))
		return p, nil
	}
}

func newTestService(t *testing.T, device DeviceReader, publisher ReadingPublisher, forwarders ...Forwarder) (*ReaderService, *observer.ObservedLogs, *metrics.Metrics) {
	normalizer, err := reading.NewNormalizer("Europe/Vienna")
	require.NoError(t, err)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	cfg := &config.Config{Polling: config.PollingConfig{IntervalMillis: 10}}

	return NewReaderService(device, normalizer, publisher, forwarders, cfg, m, zap.New(core)), logs, m
}

func TestRunCycleSucceeded(t *testing.T) {
	device := &fakeDevice{fetch: payloadOf(t, summerPayload)}
	publisher := &fakePublisher{outcome: ingress.Outcome{StatusCode: http.StatusAccepted}}
	sink := &fakeForwarder{name: "amqp"}
	svc, logs, m := newTestService(t, device, publisher, sink)

	result := svc.RunCycle(context.Background())

	assert.Equal(t, CycleSucceeded, result.Status)
	assert.True(t, result.OK())
	assert.NoError(t, result.Err)
	assert.NotEmpty(t, result.ID)

	published := publisher.published()
	require.Len(t, published, 1)
	assert.Equal(t, "2018-08-15T08:58:45+00:00", published[0].Date)
	require.NotNil(t, published[0].PowerAc)
	assert.Equal(t, json.Number("1234"), *published[0].PowerAc)
	assert.Nil(t, published[0].VoltageAc)

	assert.Equal(t, int32(1), sink.forward.Load())
	assert.Equal(t, 1, logs.FilterMessage("Successfully published data.").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("succeeded", "publish")))

	status := svc.Status()
	assert.Equal(t, uint64(1), status.Cycles)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, result.ID, status.LastCycle.ID)
}

func TestRunCycleFetchError(t *testing.T) {
	device := &fakeDevice{fetch: func() (solarlog.Payload, error) {
		return nil, &solarlog.DeviceCommunicationError{Endpoint: "http://device/getjp", StatusCode: 500, Body: "boom"}
	}}
	publisher := &fakePublisher{}
	svc, logs, _ := newTestService(t, device, publisher)

	result := svc.RunCycle(context.Background())

	assert.Equal(t, CycleSkipped, result.Status)
	assert.Equal(t, PhaseFetch, result.Phase)
	var commErr *solarlog.DeviceCommunicationError
	require.True(t, errors.As(result.Err, &commErr))
	assert.Equal(t, 500, commErr.StatusCode)
	assert.Empty(t, publisher.published())

	entries := logs.FilterMessage("poll cycle skipped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(500), entries[0].ContextMap()["status_code"])
}

func TestRunCycleNormalizeErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, err error)
	}{
		{"missing 801", `{"802":{}}`, func(t *testing.T, err error) {
			var malformed *solarlog.MalformedResponseError
			assert.True(t, errors.As(err, &malformed))
		}},
		{"dst overlap", `{"801":{"170":{"100":"28.10.18 02:30:00"}}}`, func(t *testing.T, err error) {
			var localErr *timeparser.AmbiguousOrInvalidLocalTimeError
			assert.True(t, errors.As(err, &localErr))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &fakePublisher{}
			svc, _, _ := newTestService(t, &fakeDevice{fetch: payloadOf(t, tt.body)}, publisher)

			result := svc.RunCycle(context.Background())

			assert.Equal(t, CycleSkipped, result.Status)
			assert.Equal(t, PhaseNormalize, result.Phase)
			tt.check(t, result.Err)
			assert.Empty(t, publisher.published())
		})
	}
}

func TestRunCyclePublishRejected(t *testing.T) {
	publisher := &fakePublisher{outcome: ingress.Outcome{StatusCode: http.StatusOK, Body: "not accepted"}}
	svc, logs, m := newTestService(t, &fakeDevice{fetch: payloadOf(t, summerPayload)}, publisher)

	var result CycleResult
	require.NotPanics(t, func() {
		result = svc.RunCycle(context.Background())
	})

	assert.Equal(t, CycleRejected, result.Status)
	assert.False(t, result.OK())
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.NoError(t, result.Err)
	assert.Equal(t, 1, logs.FilterMessage("ingress API rejected reading").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishResponses.WithLabelValues("200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastSuccess))
}

func TestRunCyclePublishTransportError(t *testing.T) {
	publisher := &fakePublisher{err: &ingress.PublishTransportError{URL: "https://api/ingress", Err: errors.New("connection refused")}}
	sink := &fakeForwarder{name: "mqtt"}
	svc, _, _ := newTestService(t, &fakeDevice{fetch: payloadOf(t, summerPayload)}, publisher, sink)

	result := svc.RunCycle(context.Background())

	assert.Equal(t, CycleSkipped, result.Status)
	assert.Equal(t, PhasePublish, result.Phase)
	var transportErr *ingress.PublishTransportError
	assert.True(t, errors.As(result.Err, &transportErr))
	assert.Equal(t, int32(1), sink.forward.Load())
}

func TestRunCycleRecoversPanic(t *testing.T) {
	device := &fakeDevice{fetch: func() (solarlog.Payload, error) {
		panic("device driver bug")
	}}
	svc, logs, _ := newTestService(t, device, &fakePublisher{})

	var result CycleResult
	require.NotPanics(t, func() {
		result = svc.RunCycle(context.Background())
	})

	assert.Equal(t, CycleSkipped, result.Status)
	assert.Equal(t, PhaseFetch, result.Phase)
	assert.ErrorContains(t, result.Err, "device driver bug")
	assert.Equal(t, 1, logs.FilterMessage("recovered from panic in poll cycle").Len())
}

func TestRunCycleForwarderFailuresAreIsolated(t *testing.T) {
	publisher := &fakePublisher{outcome: ingress.Outcome{StatusCode: http.StatusAccepted}}
	failing := &fakeForwarder{name: "amqp", err: errors.New("channel closed")}
	panicking := &fakeForwarder{name: "mqtt", panics: true}
	svc, logs, m := newTestService(t, &fakeDevice{fetch: payloadOf(t, summerPayload)}, publisher, failing, panicking)

	result := svc.RunCycle(context.Background())

	assert.Equal(t, CycleSucceeded, result.Status)
	assert.Equal(t, int32(1), failing.forward.Load())
	assert.Equal(t, int32(1), panicking.forward.Load())
	assert.Equal(t, 2, logs.FilterMessage("failed to forward reading").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForwardErrors.WithLabelValues("mqtt")))
}

func TestRunKeepsPollingAfterFailures(t *testing.T) {
	device := &fakeDevice{fetch: func() (solarlog.Payload, error) {
		return nil, &solarlog.DeviceCommunicationError{Endpoint: "http://device/getjp", Err: errors.New("connection refused")}
	}}
	svc, _, _ := newTestService(t, device, &fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return device.calls.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, svc.Status().Running)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop after cancel")
	}
	assert.False(t, svc.Status().Running)
	assert.Equal(t, StateIdle, svc.Status().State)
}

func TestRunSleepsBetweenCycles(t *testing.T) {
	publisher := &fakePublisher{outcome: ingress.Outcome{StatusCode: http.StatusAccepted}}
	device := &fakeDevice{fetch: payloadOf(t, summerPayload)}
	svc, _, _ := newTestService(t, device, publisher)
	svc.interval = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	svc.Run(ctx)

	calls := device.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(1))
	assert.LessOrEqual(t, calls, int32(2))
}

func TestRunStopsDuringSleep(t *testing.T) {
	device := &fakeDevice{fetch: payloadOf(t, summerPayload)}
	publisher := &fakePublisher{outcome: ingress.Outcome{StatusCode: http.StatusAccepted}}
	svc, _, _ := newTestService(t, device, publisher)
	svc.interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return svc.Status().State == StateSleeping
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll loop kept sleeping after cancel")
	}
	assert.Equal(t, int32(1), device.calls.Load())
}

func TestSleep(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeDevice{}, &fakePublisher{})
	svc.interval = 10 * time.Millisecond

	assert.True(t, svc.sleep(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.interval = time.Hour
	assert.False(t, svc.sleep(ctx))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "normalizing", StateNormalizing.String())
	assert.Equal(t, "publishing", StatePublishing.String())
	assert.Equal(t, "sleeping", StateSleeping.String())
}
