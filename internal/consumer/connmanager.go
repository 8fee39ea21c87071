package consumer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConnState is the connection manager's lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateShuttingDown
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// MessageHandler receives one raw message from the transport. The
// transport invokes it synchronously, one message at a time.
type MessageHandler func(topic string, payload []byte)

// Subscription is one topic pattern with its delivery requirement.
type Subscription struct {
	Topic string
	QoS   byte
}

// DeviceSubscriptions returns the topic patterns the collector
// listens on. Announcements, status and error reports need
// acknowledged delivery; high-rate sensor data favors throughput.
func DeviceSubscriptions() []Subscription {
	return []Subscription{
		{Topic: "devices/+/capabilities", QoS: 1},
		{Topic: "devices/+/sensors/+/data", QoS: 0},
		{Topic: "devices/+/status", QoS: 1},
		{Topic: "devices/+/error", QoS: 1},
	}
}

// Session is one live broker connection.
type Session interface {
	Subscribe(topic string, qos byte) error
	Disconnect(quiesce uint)
}

// Dialer establishes broker sessions. onLost is invoked at most once
// per session, on unexpected connection loss.
type Dialer interface {
	Dial(onMessage MessageHandler, onLost func(error)) (Session, error)
}

// ConnManager maintains exactly one logical broker session,
// re-establishing it with bounded exponential backoff. The loop is
// Disconnected → Connecting → Connected → Disconnected; an explicit
// Stop moves to ShuttingDown from any state, interrupting a sleeping
// retry deterministically.
type ConnManager struct {
	dialer    Dialer
	subs      []Subscription
	onMessage MessageHandler
	logger    *zap.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu       sync.Mutex
	state    ConnState
	session  Session
	started  bool
	draining bool

	inflight sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewConnManager creates a manager; Start launches the connect loop.
func NewConnManager(dialer Dialer, subs []Subscription, onMessage MessageHandler, initialBackoff, maxBackoff time.Duration, logger *zap.Logger) *ConnManager {
	return &ConnManager{
		dialer:         dialer,
		subs:           subs,
		onMessage:      onMessage,
		logger:         logger,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		state:          StateDisconnected,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start launches the connect loop in its own goroutine.
func (m *ConnManager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()
	go m.run()
}

// Stop shuts the session down and ceases reconnect attempts. Safe to
// call more than once, and before Start; returns only after the loop
// has exited and every in-flight message handler has finished, so
// callers may tear down handler dependencies the moment it returns.
func (m *ConnManager) Stop() {
	m.stopOnce.Do(func() {
		m.setState(StateShuttingDown)
		close(m.stop)
	})

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}

	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()
	if session != nil {
		session.Disconnect(250)
	}

	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()
	m.inflight.Wait()
}

// handle is the callback handed to the transport. Handlers run on
// the transport's delivery goroutine; tracking them lets Stop drain
// instead of pulling storage out from under a slow append.
func (m *ConnManager) handle(topic string, payload []byte) {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	m.onMessage(topic, payload)
}

// State returns the current lifecycle state.
func (m *ConnManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnManager) setState(s ConnState) {
	m.mu.Lock()
	// ShuttingDown is terminal
	if m.state != StateShuttingDown {
		m.state = s
	}
	m.mu.Unlock()
}

// nextBackoff doubles the retry delay, capped at max.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func (m *ConnManager) run() {
	defer close(m.done)

	delay := m.initialBackoff

	for {
		select {
		case <-m.stop:
			return
		default:
		}

		m.setState(StateConnecting)

		lost := make(chan error, 1)
		session, err := m.dialer.Dial(m.handle, func(err error) {
			select {
			case lost <- err:
			default:
			}
		})
		if err != nil {
			m.logger.Error("Connection failed",
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			select {
			case <-time.After(delay):
			case <-m.stop:
				return
			}
			delay = nextBackoff(delay, m.maxBackoff)
			continue
		}

		// delay resets immediately on a successful connection
		delay = m.initialBackoff

		m.mu.Lock()
		m.session = session
		m.mu.Unlock()
		m.setState(StateConnected)
		m.logger.Info("Connected to MQTT broker")

		for _, sub := range m.subs {
			if err := session.Subscribe(sub.Topic, sub.QoS); err != nil {
				m.logger.Error("Failed to subscribe",
					zap.String("topic", sub.Topic),
					zap.Error(err),
				)
			} else {
				m.logger.Info("Subscribed to topic",
					zap.String("topic", sub.Topic),
					zap.Uint8("qos", sub.QoS),
				)
			}
		}

		select {
		case err := <-lost:
			m.setState(StateDisconnected)
			m.logger.Warn("Unexpected disconnect from MQTT broker",
				zap.Error(err),
			)
			m.mu.Lock()
			m.session = nil
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}
