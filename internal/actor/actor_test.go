package actor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightlink/copter-actor/internal/driver"
	"github.com/flightlink/copter-actor/internal/driver/drivertest"
	"github.com/flightlink/copter-actor/internal/supervisor"
	"github.com/flightlink/copter-actor/internal/translator"
	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/healthcheck"
	"github.com/flightlink/copter-actor/pkg/mission"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

// mockMQTTClient is a test double for the hub client
type mockMQTTClient struct {
	mu            sync.Mutex
	connected     bool
	connectErr    error
	publishErr    error
	publishedMsgs []publishedMessage
	subscriptions map[string]mqtt.MessageHandler
	publishHook   func(topic string) // called before a publish is recorded
}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func newMockMQTTClient() *mockMQTTClient {
	return &mockMQTTClient{
		subscriptions: make(map[string]mqtt.MessageHandler),
	}
}

func (m *mockMQTTClient) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockMQTTClient) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *mockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTTClient) setConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *mockMQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if m.publishHook != nil {
		m.publishHook(topic)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.publishedMsgs = append(m.publishedMsgs, publishedMessage{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  payload,
	})
	return nil
}

func (m *mockMQTTClient) PublishJSON(topic string, qos byte, retained bool, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.Publish(topic, qos, retained, data)
}

func (m *mockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[topic] = handler
	return nil
}

func (m *mockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, topic)
	return nil
}

// deliver hands payload to the handler subscribed on topic.
func (m *mockMQTTClient) deliver(t *testing.T, topic string, payload []byte) error {
	t.Helper()
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	require.True(t, ok, "no subscription on %s", topic)
	return handler(topic, payload)
}

func (m *mockMQTTClient) published(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMessage
	for _, msg := range m.publishedMsgs {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

var _ mqtt.Hub = (*mockMQTTClient)(nil)

type harness struct {
	actor *Actor
	hub   *mockMQTTClient
	drone *drivertest.Drone
	sup   *supervisor.Supervisor
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ActorKey = "copter:test"
	cfg.HealthInterval = 0
	return cfg
}

// newHarness wires an actor to a supervisor over fake drivers with the tower
// already connected.
func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{hub: newMockMQTTClient(), drone: drivertest.NewDrone()}
	tower := drivertest.NewTower()

	sup, err := supervisor.New(supervisor.DefaultConfig(), h.drone, tower,
		func(name string, payload interface{}) { h.actor.Emit(name, payload) }, nil)
	require.NoError(t, err)
	h.sup = sup

	h.actor, err = New(cfg, h.hub, sup, nil)
	require.NoError(t, err)
	h.actor.RegisterHealthCheck(sup)

	require.NoError(t, sup.Open())
	tower.FireConnected()
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.actor.Start(context.Background()))
	t.Cleanup(func() { _ = h.actor.Stop(context.Background()) })
}

func decodeEnvelope(t *testing.T, payload []byte, v interface{}) mqtt.Message {
	t.Helper()
	var msg mqtt.Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	if v != nil {
		require.NoError(t, msg.UnmarshalPayload(v))
	}
	return msg
}

func callPayload(t *testing.T, method string, params ...interface{}) (mqtt.Message, []byte) {
	t.Helper()
	msg, err := mqtt.NewMessage(mqtt.MessageTypeCall, "caller:test", mqtt.CallMessage{Method: method, Params: params})
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return *msg, data
}

func TestNewValidation(t *testing.T) {
	h := newHarness(t, testConfig())

	_, err := New(testConfig(), nil, h.sup, nil)
	assert.Error(t, err)
	_, err = New(testConfig(), h.hub, nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Module = ""
	_, err = New(cfg, h.hub, h.sup, nil)
	assert.Error(t, err)
}

func TestModuleSurface(t *testing.T) {
	h := newHarness(t, testConfig())
	a := h.actor

	assert.Equal(t, "arduCopter", a.Name())
	assert.Len(t, a.Methods(), 18)
	assert.Contains(t, a.Methods(), MethodReturnToLaunch)
	assert.Contains(t, a.Methods(), MethodEnableEvents)
	assert.ElementsMatch(t, translator.Names(), a.Events())

	topics := a.Topics()
	assert.Equal(t, "hub/actor/copter:test/arduCopter/call", topics.Call)
	assert.Equal(t, "hub/actor/copter:test/arduCopter/event/mode", topics.Event("mode"))
	assert.Equal(t, "actor:copter:test/arduCopter", Source(testConfig()))
}

func TestStartAndStop(t *testing.T) {
	h := newHarness(t, testConfig())
	topics := h.actor.Topics()

	require.NoError(t, h.actor.Start(context.Background()))
	assert.True(t, h.actor.IsRunning())
	assert.True(t, h.hub.IsConnected())
	assert.Contains(t, h.hub.subscriptions, topics.Call)
	assert.Error(t, h.actor.Start(context.Background()), "second start")

	specs := h.hub.published(topics.Spec)
	require.Len(t, specs, 1)
	assert.True(t, specs[0].retained)
	var spec mqtt.SpecMessage
	msg := decodeEnvelope(t, specs[0].payload, &spec)
	assert.Equal(t, mqtt.MessageTypeSpec, msg.Type)
	assert.Equal(t, "arduCopter", spec.Module)
	assert.Equal(t, SpecVersion, spec.Version)
	assert.Len(t, spec.Methods, 18)
	assert.Len(t, spec.Events, 13)

	require.NoError(t, h.actor.Stop(context.Background()))
	require.NoError(t, h.actor.Stop(context.Background()))
	assert.False(t, h.actor.IsRunning())
	assert.False(t, h.hub.IsConnected())
	assert.NotContains(t, h.hub.subscriptions, topics.Call)

	specs = h.hub.published(topics.Spec)
	require.Len(t, specs, 2)
	assert.True(t, specs[1].retained)
	assert.Empty(t, specs[1].payload, "spec cleared on stop")
}

func TestStartConnectError(t *testing.T) {
	h := newHarness(t, testConfig())
	h.hub.connectErr = errors.New("broker down")

	err := h.actor.Start(context.Background())
	assert.ErrorIs(t, err, h.hub.connectErr)
	assert.False(t, h.actor.IsRunning())
}

func TestCallOverHub(t *testing.T) {
	h := newHarness(t, testConfig())
	h.start(t)
	topics := h.actor.Topics()

	call, payload := callPayload(t, MethodTakeoff, 12)
	require.NoError(t, h.hub.deliver(t, topics.Call, payload))

	calls := h.drone.CallsTo("Takeoff")
	require.Len(t, calls, 1)
	assert.Equal(t, 12.0, calls[0].Args[0])

	responses := h.hub.published(topics.Response)
	require.Len(t, responses, 1)
	var resp mqtt.ResponseMessage
	msg := decodeEnvelope(t, responses[0].payload, &resp)
	assert.Equal(t, mqtt.MessageTypeResponse, msg.Type)
	assert.Equal(t, call.ID, msg.CorrelationID)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
}

func TestCallErrorsOverHub(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		params  []interface{}
		wantErr string
	}{
		{name: "unknown method", method: "startGimbalControl", wantErr: "unknown method"},
		{name: "bad argument", method: MethodTakeoff, params: []interface{}{"high"}, wantErr: "argument 0"},
		{name: "missing argument", method: MethodGoTo, params: []interface{}{35.0}, wantErr: "argument 1 is missing"},
		{name: "unsupported transport", method: MethodConnect, params: []interface{}{"bluetooth", ""}, wantErr: "unsupported transport"},
		{name: "bad mission", method: MethodSaveMission, params: []interface{}{[]interface{}{map[string]interface{}{"type": "hover"}}}, wantErr: "record 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.start(t)
			topics := h.actor.Topics()

			_, payload := callPayload(t, tt.method, tt.params...)
			require.NoError(t, h.hub.deliver(t, topics.Call, payload))

			responses := h.hub.published(topics.Response)
			require.Len(t, responses, 1)
			var resp mqtt.ResponseMessage
			decodeEnvelope(t, responses[0].payload, &resp)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.wantErr)
		})
	}
}

func TestNonCallMessagesIgnored(t *testing.T) {
	h := newHarness(t, testConfig())
	h.start(t)
	topics := h.actor.Topics()

	msg, err := mqtt.NewMessage(mqtt.MessageTypeEvent, "caller:test", mqtt.EventMessage{Event: "x"})
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.NoError(t, h.hub.deliver(t, topics.Call, data))
	assert.Error(t, h.hub.deliver(t, topics.Call, []byte("not json")))
	assert.Empty(t, h.hub.published(topics.Response))
}

func TestCallTable(t *testing.T) {
	m := mission.Mission{
		&mission.Takeoff{Altitude: 5, Pitch: 0},
		&mission.Waypoint{Coordinate: coordinate.Coordinate3D{Altitude: 50}},
		&mission.Land{},
	}
	wireMission := []interface{}{
		map[string]interface{}{"type": "takeoff", "altitude": 5},
		map[string]interface{}{"type": "waypoint", "coordinate": []interface{}{0, 0, 50}},
		map[string]interface{}{"type": "land"},
	}

	tests := []struct {
		method string
		args   []interface{}
		want   drivertest.Call
	}{
		{
			method: MethodConnect,
			args:   []interface{}{"udp", "192.168.1.33"},
			want:   drivertest.Call{Method: "Connect", Args: []interface{}{driver.NewUDPConnection(14550, "192.168.1.33", 14550)}},
		},
		{
			method: MethodConnect,
			args:   []interface{}{"usb"},
			want:   drivertest.Call{Method: "Connect", Args: []interface{}{driver.NewUSBConnection(57600)}},
		},
		{
			method: MethodTakeoff,
			args:   []interface{}{"100"},
			want:   drivertest.Call{Method: "Takeoff", Args: []interface{}{100.0}},
		},
		{
			method: MethodClimbTo,
			args:   []interface{}{json.Number("42.5")},
			want:   drivertest.Call{Method: "ClimbTo", Args: []interface{}{42.5}},
		},
		{
			method: MethodGoTo,
			args:   []interface{}{35.1, 139},
			want:   drivertest.Call{Method: "GoTo", Args: []interface{}{coordinate.Coordinate2D{Latitude: 35.1, Longitude: 139}, true}},
		},
		{
			method: MethodPause,
			want:   drivertest.Call{Method: "PauseAtCurrentLocation"},
		},
		{
			method: MethodTurnTo,
			args:   []interface{}{90, 10, "true"},
			want:   drivertest.Call{Method: "TurnTo", Args: []interface{}{90.0, 10.0, true}},
		},
		{
			method: MethodArm,
			args:   []interface{}{true},
			want:   drivertest.Call{Method: "Arm", Args: []interface{}{true}},
		},
		{
			method: MethodSetHome,
			args:   []interface{}{1, 2, 3},
			want:   drivertest.Call{Method: "SetVehicleHome", Args: []interface{}{coordinate.Coordinate3D{Latitude: 1, Longitude: 2, Altitude: 3}}},
		},
		{
			method: MethodGoToWaypointIndex,
			args:   []interface{}{3.0},
			want:   drivertest.Call{Method: "GotoWaypoint", Args: []interface{}{3}},
		},
		{
			method: MethodLoadMission,
			want:   drivertest.Call{Method: "LoadWaypoints"},
		},
		{
			method: MethodSaveMission,
			args:   []interface{}{wireMission},
			want:   drivertest.Call{Method: "SetMission", Args: []interface{}{m, true}},
		},
		{
			method: MethodStartMission,
			args:   []interface{}{true, false},
			want:   drivertest.Call{Method: "StartMission", Args: []interface{}{true, false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			h := newHarness(t, testConfig())

			result, err := h.actor.Call(context.Background(), tt.method, tt.args)
			require.NoError(t, err)
			assert.Nil(t, result)

			calls := h.drone.CallsTo(tt.want.Method)
			require.Len(t, calls, 1)
			assert.Equal(t, tt.want, calls[0])
		})
	}
}

func TestModeCalls(t *testing.T) {
	h := newHarness(t, testConfig())
	h.drone.Set(driver.AttrType, driver.VehicleType{DroneType: driver.DroneTypeCopter})

	for _, method := range []string{MethodLand, MethodReturnToLaunch} {
		_, err := h.actor.Call(context.Background(), method, nil)
		require.NoError(t, err)
	}
	_, err := h.actor.Call(context.Background(), MethodSetMode, []interface{}{"Guided"})
	require.NoError(t, err)

	var modes []interface{}
	for _, c := range h.drone.CallsTo("SetVehicleMode") {
		modes = append(modes, c.Args[0])
	}
	assert.Equal(t, []interface{}{"COPTER_LAND", "COPTER_RTL", "COPTER_GUIDED"}, modes)
}

func TestDisconnectCall(t *testing.T) {
	h := newHarness(t, testConfig())

	_, err := h.actor.Call(context.Background(), MethodDisconnect, nil)
	require.NoError(t, err, "disconnect while disconnected is soft")
	assert.Empty(t, h.drone.CallsTo("Disconnect"))

	_, err = h.actor.Call(context.Background(), MethodConnect, []interface{}{"UDP", ""})
	require.NoError(t, err)
	_, err = h.actor.Call(context.Background(), MethodDisconnect, nil)
	require.NoError(t, err)
	assert.Len(t, h.drone.CallsTo("Disconnect"), 1)
}

func TestArgumentErrors(t *testing.T) {
	tests := []struct {
		method  string
		args    []interface{}
		wantErr error
		wantMsg string
	}{
		{method: MethodTakeoff, args: nil, wantErr: ErrInvalidArgument, wantMsg: "argument 0 is missing"},
		{method: MethodTakeoff, args: []interface{}{true}, wantErr: ErrInvalidArgument, wantMsg: "argument 0"},
		{method: MethodTurnTo, args: []interface{}{1, 2, "maybe"}, wantErr: ErrInvalidArgument, wantMsg: "argument 2"},
		{method: MethodSetHome, args: []interface{}{1, nil, 3}, wantErr: ErrInvalidArgument, wantMsg: "argument 1"},
		{method: MethodGoToWaypointIndex, args: []interface{}{1.5}, wantErr: ErrInvalidArgument, wantMsg: "argument 0"},
		{method: MethodConnect, args: []interface{}{7}, wantErr: ErrInvalidArgument, wantMsg: "argument 0"},
		{method: MethodConnect, args: []interface{}{"udp", 14550}, wantErr: ErrInvalidArgument, wantMsg: "argument 1"},
		{method: MethodSetMode, args: []interface{}{nil}, wantErr: ErrInvalidArgument, wantMsg: "argument 0"},
		{method: MethodStartMission, args: []interface{}{true}, wantErr: ErrInvalidArgument, wantMsg: "argument 1 is missing"},
		{method: MethodEnableEvents, args: []interface{}{"mode"}, wantErr: ErrInvalidArgument, wantMsg: "argument 0"},
		{method: MethodSaveMission, args: []interface{}{"mission"}, wantErr: mission.ErrMalformedField, wantMsg: "argument 0"},
		{
			method:  MethodSaveMission,
			args:    []interface{}{[]interface{}{map[string]interface{}{"type": "waypoint"}}},
			wantErr: mission.ErrMalformedField,
			wantMsg: "coordinate",
		},
		{method: "fly", wantErr: ErrUnknownMethod, wantMsg: "fly"},
	}

	for _, tt := range tests {
		t.Run(tt.method+"/"+tt.wantMsg, func(t *testing.T) {
			h := newHarness(t, testConfig())
			_, err := h.actor.Call(context.Background(), tt.method, tt.args)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Empty(t, h.drone.Calls())
		})
	}
}

func waitPublished(t *testing.T, hub *mockMQTTClient, topic string, n int) []publishedMessage {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(hub.published(topic)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d messages on %s", n, topic)
	return hub.published(topic)
}

func TestEventsPublished(t *testing.T) {
	h := newHarness(t, testConfig())
	h.start(t)
	topics := h.actor.Topics()

	h.drone.Fire(driver.EventConnected)
	h.drone.Set(driver.AttrState, driver.State{Mode: driver.Mode{Name: "COPTER_GUIDED", Label: "Guided"}})
	h.drone.Fire(driver.EventModeUpdated)

	msgs := waitPublished(t, h.hub, topics.Event(translator.EventConnected), 1)
	var ev mqtt.EventMessage
	env := decodeEnvelope(t, msgs[0].payload, &ev)
	assert.Equal(t, mqtt.MessageTypeEvent, env.Type)
	assert.Equal(t, Source(testConfig()), env.Source)
	assert.Equal(t, translator.EventConnected, ev.Event)
	assert.Nil(t, ev.Data)
	assert.False(t, msgs[0].retained)

	msgs = waitPublished(t, h.hub, topics.Event(translator.EventMode), 1)
	decodeEnvelope(t, msgs[0].payload, &ev)
	assert.Equal(t, map[string]interface{}{"mode": "Guided"}, ev.Data)
}

func TestEventOrderPreserved(t *testing.T) {
	h := newHarness(t, testConfig())
	var mu sync.Mutex
	var order []string
	h.hub.publishHook = func(topic string) {
		mu.Lock()
		order = append(order, topic)
		mu.Unlock()
	}
	h.start(t)
	topics := h.actor.Topics()

	for i := 0; i < 20; i++ {
		h.drone.Set(driver.AttrAltitude, driver.Altitude{Altitude: float64(i)})
		h.drone.Fire(driver.EventAltitudeUpdated)
		h.drone.Fire(driver.EventMissionSent)
	}
	require.NoError(t, h.actor.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	var events []string
	for _, topic := range order {
		switch topic {
		case topics.Event(translator.EventAltitude), topics.Event(translator.EventMissionSaved):
			events = append(events, topic)
		}
	}
	require.Len(t, events, 40)
	for i := 0; i < 40; i += 2 {
		assert.Equal(t, topics.Event(translator.EventAltitude), events[i])
		assert.Equal(t, topics.Event(translator.EventMissionSaved), events[i+1])
	}
}

func TestEventFilter(t *testing.T) {
	h := newHarness(t, testConfig())
	h.start(t)
	topics := h.actor.Topics()
	ctx := context.Background()

	_, err := h.actor.Call(ctx, MethodDisableEvents, []interface{}{nil})
	require.NoError(t, err)
	_, err = h.actor.Call(ctx, MethodEnableEvents, []interface{}{[]interface{}{"gimbalOrientation", "mode"}})
	require.NoError(t, err)

	h.drone.Fire(driver.EventConnected)
	h.drone.Set(driver.AttrState, driver.State{Mode: driver.Mode{Label: "Guided"}})
	h.drone.Fire(driver.EventModeUpdated)
	h.drone.Fire(driver.EventMissionSent)

	waitPublished(t, h.hub, topics.Event(translator.EventMode), 1)
	require.NoError(t, h.actor.Stop(ctx))
	assert.Empty(t, h.hub.published(topics.Event(translator.EventConnected)))
	assert.Empty(t, h.hub.published(topics.Event(translator.EventMissionSaved)))
}

func TestEventFilterSets(t *testing.T) {
	f := newEventFilter()
	for _, name := range translator.Names() {
		assert.True(t, f.allows(name), name)
	}

	f.disable([]string{translator.EventSpeed})
	assert.False(t, f.allows(translator.EventSpeed))
	assert.True(t, f.allows(translator.EventMode))

	f.disable(nil)
	assert.False(t, f.allows(translator.EventMode))

	f.enable([]string{})
	assert.False(t, f.allows(translator.EventMode), "empty list enables nothing")

	f.enable(nil)
	assert.True(t, f.allows(translator.EventSpeed))
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 1
	h := newHarness(t, cfg)
	topics := h.actor.Topics()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	h.hub.publishHook = func(topic string) {
		if topic == topics.Event(translator.EventConnected) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}
	}
	h.start(t)

	h.actor.Emit(translator.EventConnected, nil)
	<-entered // pump is blocked publishing the first event

	h.actor.Emit(translator.EventMissionSaved, nil)
	h.actor.Emit(translator.EventDisconnected, nil)

	result := h.actor.HealthCheck(context.Background())
	assert.Equal(t, uint64(1), result.Details["dropped_events"])

	close(release)
	require.NoError(t, h.actor.Stop(context.Background()))
	assert.Len(t, h.hub.published(topics.Event(translator.EventMissionSaved)), 1)
	assert.Empty(t, h.hub.published(topics.Event(translator.EventDisconnected)))
}

func TestEmitIgnoredWhenStopped(t *testing.T) {
	h := newHarness(t, testConfig())
	h.actor.Emit(translator.EventConnected, nil)
	assert.Empty(t, h.actor.queue)
}

func TestStopLeavesNoQueuedEvents(t *testing.T) {
	h := newHarness(t, testConfig())
	require.NoError(t, h.actor.Start(context.Background()))

	stop := make(chan struct{})
	wg := conc.NewWaitGroup()
	for i := 0; i < 4; i++ {
		wg.Go(func() {
			for {
				select {
				case <-stop:
					return
				default:
					h.actor.Emit(translator.EventAltitude, nil)
				}
			}
		})
	}

	require.NoError(t, h.actor.Stop(context.Background()))
	close(stop)
	wg.Wait()
	assert.Empty(t, h.actor.queue, "emits racing stop must not outlive the final flush")
}

func TestStartDiscardsStaleEvents(t *testing.T) {
	h := newHarness(t, testConfig())
	topics := h.actor.Topics()
	h.actor.queue <- event{name: translator.EventMissionSaved}

	h.start(t)
	h.actor.Emit(translator.EventConnected, nil)
	waitPublished(t, h.hub, topics.Event(translator.EventConnected), 1)
	assert.Empty(t, h.hub.published(topics.Event(translator.EventMissionSaved)))
}

func TestHealthCheck(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	assert.Equal(t, healthcheck.StatusUnhealthy, h.actor.HealthCheck(ctx).Status)

	h.start(t)
	result := h.actor.HealthCheck(ctx)
	assert.Equal(t, healthcheck.StatusHealthy, result.Status)
	assert.Contains(t, result.Details, "uptime_seconds")

	h.hub.setConnected(false)
	assert.Equal(t, healthcheck.StatusDegraded, h.actor.HealthCheck(ctx).Status)

	h.hub.setConnected(true)
	agg := h.actor.HealthEngine().CheckAll(ctx)
	assert.Contains(t, agg.Components, "actor")
	assert.Contains(t, agg.Components, "supervisor")
	assert.Equal(t, healthcheck.StatusDegraded, agg.OverallStatus, "drone link is down")
}

func TestHealthReported(t *testing.T) {
	cfg := testConfig()
	cfg.HealthInterval = time.Hour
	h := newHarness(t, cfg)
	h.start(t)

	msgs := waitPublished(t, h.hub, h.actor.Topics().Health, 1)
	var agg healthcheck.AggregatedResult
	env := decodeEnvelope(t, msgs[0].payload, &agg)
	assert.Equal(t, mqtt.MessageTypeStatus, env.Type)
	assert.Contains(t, agg.Components, "actor")
	assert.True(t, msgs[0].retained)
}

func TestStopReplacesRetainedHealth(t *testing.T) {
	cfg := testConfig()
	cfg.HealthInterval = time.Hour
	h := newHarness(t, cfg)
	require.NoError(t, h.actor.Start(context.Background()))
	waitPublished(t, h.hub, h.actor.Topics().Health, 1)

	require.NoError(t, h.actor.Stop(context.Background()))

	msgs := h.hub.published(h.actor.Topics().Health)
	require.Len(t, msgs, 2)
	last := msgs[len(msgs)-1]
	assert.True(t, last.retained)
	var agg healthcheck.AggregatedResult
	decodeEnvelope(t, last.payload, &agg)
	assert.Equal(t, healthcheck.StatusUnhealthy, agg.OverallStatus)
	require.Contains(t, agg.Components, "actor")
	assert.Equal(t, "Module stopped", agg.Components["actor"].Message)
}

func TestWill(t *testing.T) {
	cfg := testConfig()
	will, err := Will(cfg)
	require.NoError(t, err)

	assert.Equal(t, "hub/actor/copter:test/health", will.Topic)
	assert.Equal(t, cfg.QoS, will.QoS)

	var agg healthcheck.AggregatedResult
	env := decodeEnvelope(t, will.Payload, &agg)
	assert.Equal(t, mqtt.MessageTypeStatus, env.Type)
	assert.Equal(t, healthcheck.StatusUnhealthy, agg.OverallStatus)
}
