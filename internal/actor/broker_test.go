package actor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightlink/copter-actor/internal/driver/drivertest"
	"github.com/flightlink/copter-actor/internal/supervisor"
	"github.com/flightlink/copter-actor/pkg/caller"
	"github.com/flightlink/copter-actor/pkg/healthcheck"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

// startBroker runs an in-process MQTT broker on a loopback port.
func startBroker(t *testing.T) string {
	t.Helper()
	server := mochi.New(&mochi.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	tcp := listeners.NewTCP(listeners.Config{ID: "test", Address: "127.0.0.1:0"})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
	return "tcp://" + tcp.Address()
}

func newBrokerClient(t *testing.T, brokerURL, clientID string) *mqtt.Client {
	t.Helper()
	client, err := mqtt.NewClient(&mqtt.Config{
		BrokerURL:      brokerURL,
		ClientID:       clientID,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, client.Connect())
	t.Cleanup(client.Disconnect)
	return client
}

// newBrokerActor starts a module over a real client with the tower connected.
func newBrokerActor(t *testing.T, brokerURL string) (*Actor, *drivertest.Drone) {
	t.Helper()
	drone := drivertest.NewDrone()
	tower := drivertest.NewTower()

	var a *Actor
	sup, err := supervisor.New(supervisor.DefaultConfig(), drone, tower,
		func(name string, payload interface{}) { a.Emit(name, payload) }, nil)
	require.NoError(t, err)

	a, err = New(testConfig(), newBrokerClient(t, brokerURL, "copter-actor-test"), sup, nil)
	require.NoError(t, err)
	require.NoError(t, sup.Open())
	tower.FireConnected()

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a, drone
}

func TestBrokerConcurrentCallsAnswered(t *testing.T) {
	brokerURL := startBroker(t)
	a, drone := newBrokerActor(t, brokerURL)

	cl, err := caller.New(newBrokerClient(t, brokerURL, "copter-call-test"), a.Topics(), "", 1, nil)
	require.NoError(t, err)
	require.NoError(t, cl.Start())
	t.Cleanup(func() { _ = cl.Close() })

	const calls = 50
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var answered atomic.Int32
	wg := conc.NewWaitGroup()
	for i := 0; i < calls; i++ {
		wg.Go(func() {
			resp, err := cl.Call(ctx, MethodTakeoff, 10)
			if assert.NoError(t, err) && assert.True(t, resp.Success) {
				answered.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(calls), answered.Load())
	assert.Len(t, drone.CallsTo("Takeoff"), calls)
}

func TestBrokerRetainsOfflineHealthAfterStop(t *testing.T) {
	brokerURL := startBroker(t)
	a, _ := newBrokerActor(t, brokerURL)
	topic := a.Topics().Health
	require.NoError(t, a.Stop(context.Background()))

	received := make(chan []byte, 1)
	observer := newBrokerClient(t, brokerURL, "copter-observer-test")
	require.NoError(t, observer.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case received <- payload:
		default:
		}
		return nil
	}))

	select {
	case payload := <-received:
		var msg mqtt.Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		var agg healthcheck.AggregatedResult
		require.NoError(t, msg.UnmarshalPayload(&agg))
		assert.Equal(t, healthcheck.StatusUnhealthy, agg.OverallStatus)
		assert.Equal(t, "Module stopped", agg.Components["actor"].Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no retained health report after stop")
	}
}
