package systemd

import (
	"fmt"
	"log"

	"github.com/godbus/dbus/v5"
)

// ResumeListener watches logind's PrepareForSleep signal so the sensor
// can be reprogrammed after a suspend cycle. The PIR loses its
// configuration register when its supply rail is cut, so every resume
// needs a full re-init and re-arm.
type ResumeListener struct {
	conn     *dbus.Conn
	logger   *log.Logger
	onResume func()
	signals  chan *dbus.Signal
	done     chan struct{}
}

func NewResumeListener(logger *log.Logger, onResume func()) (*ResumeListener, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/login1"),
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to PrepareForSleep: %w", err)
	}

	signals := make(chan *dbus.Signal, 10)
	conn.Signal(signals)

	return &ResumeListener{
		conn:     conn,
		logger:   logger,
		onResume: onResume,
		signals:  signals,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for resume signals.
func (l *ResumeListener) Start() {
	go l.loop()
}

func (l *ResumeListener) loop() {
	for {
		select {
		case <-l.done:
			return
		case sig, ok := <-l.signals:
			if !ok {
				return
			}
			if len(sig.Body) != 1 {
				continue
			}
			entering, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if entering {
				l.logger.Printf("System entering sleep")
				continue
			}
			l.logger.Printf("Resume from sleep detected")
			l.onResume()
		}
	}
}

// Close stops the listener and releases the bus connection.
func (l *ResumeListener) Close() error {
	close(l.done)
	return l.conn.Close()
}
