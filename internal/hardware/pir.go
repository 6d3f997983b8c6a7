package hardware

import (
	"fmt"
	"log"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// EdgeHandler is invoked from the GPIO event-delivery goroutine on each
// rising edge of the direct-link line. It must not block beyond the
// latch re-arm the sensor's timing contract requires.
type EdgeHandler func()

// PIR drives a wake-up-mode pyroelectric motion sensor over two GPIO
// lines: a serial-in line used to program the configuration register,
// and the direct-link line the sensor raises when motion is detected.
type PIR struct {
	logger   *log.Logger
	settings Settings
	dryRun   bool

	chipName         string
	serialInOffset   int
	directLinkOffset int

	chip       *gpiocdev.Chip
	serialIn   *gpiocdev.Line
	directLink *gpiocdev.Line

	handler EdgeHandler
}

// NewPIR opens the GPIO lines for the sensor. The direct-link line is
// requested with rising-edge detection immediately; edges are dropped
// until SetEdgeHandler is called.
func NewPIR(logger *log.Logger, chipName string, serialInOffset, directLinkOffset int, settings Settings, dryRun bool) (*PIR, error) {
	p := &PIR{
		logger:           logger,
		settings:         settings,
		dryRun:           dryRun,
		chipName:         chipName,
		serialInOffset:   serialInOffset,
		directLinkOffset: directLinkOffset,
	}

	if dryRun {
		logger.Printf("DRY RUN: skipping GPIO setup for PIR on %s", chipName)
		return p, nil
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipName, err)
	}
	p.chip = chip

	serialIn, err := chip.RequestLine(serialInOffset, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("failed to request PIR serial-in GPIO: %w", err)
	}
	p.serialIn = serialIn

	// Pull-down matters here: an unpopulated sensor footprint must not
	// leave an open input generating noise interrupts. The sensor's
	// active drive overcomes the pull.
	directLink, err := chip.RequestLine(directLinkOffset,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(p.onLineEvent))
	if err != nil {
		serialIn.Close()
		chip.Close()
		return nil, fmt.Errorf("failed to request PIR direct-link GPIO: %w", err)
	}
	p.directLink = directLink

	logger.Printf("Initialized PIR GPIO lines: serial-in (offset %d), direct-link (offset %d)", serialInOffset, directLinkOffset)
	return p, nil
}

// SetEdgeHandler installs the rising-edge callback.
func (p *PIR) SetEdgeHandler(h EdgeHandler) {
	p.handler = h
}

func (p *PIR) onLineEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}
	if p.handler != nil {
		p.handler()
	}
}

// Init programs the configuration register over the serial-in line and
// arms the wake latch. Called once at startup and again after a system
// resume, since the sensor loses its configuration when its supply rail
// is cut during suspend.
func (p *PIR) Init() error {
	reg := p.settings.ConfigRegister()

	if p.dryRun {
		p.logger.Printf("DRY RUN: would program PIR config register %#07x", reg)
		return nil
	}

	// tSLT: the line must be held low for at least 580us before the
	// sensor accepts a configuration word.
	if err := p.serialIn.SetValue(0); err != nil {
		return fmt.Errorf("failed to drive PIR serial-in low: %w", err)
	}
	sleepMicros(750)

	// 25 bits, MSB first, each latched on its own rising edge.
	for i := 24; i >= 0; i-- {
		p.serialIn.SetValue(0)
		sleepMicros(5) // tSL can be very short
		p.serialIn.SetValue(1)
		sleepMicros(1) // between tSL and tSHD

		bit := 0
		if reg&(1<<uint(i)) != 0 {
			bit = 1
		}
		p.serialIn.SetValue(bit)
		sleepMicros(100) // tSHD must be at least 72us
	}

	p.serialIn.SetValue(0)
	sleepMicros(750) // tSLT again, to latch the word

	p.logger.Printf("Programmed PIR config register %#07x", reg)

	return p.Rearm()
}

// Rearm resets the sensor's wake latch: the direct-link line is pulled
// low, held, then handed back to the sensor as an edge-watched input.
// Called from the edge handler before the pulse is acted on, so a
// follow-up pulse is not missed.
func (p *PIR) Rearm() error {
	if p.dryRun {
		return nil
	}

	if err := p.directLink.Reconfigure(gpiocdev.AsOutput(0)); err != nil {
		return fmt.Errorf("failed to pull PIR direct-link low: %w", err)
	}
	sleepMicros(250) // must be held low for at least 35us

	if err := p.directLink.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown, gpiocdev.WithRisingEdge); err != nil {
		return fmt.Errorf("failed to re-arm PIR direct-link: %w", err)
	}

	return nil
}

// Close releases the GPIO resources.
func (p *PIR) Close() error {
	if p.dryRun {
		return nil
	}

	var lastErr error

	if err := p.directLink.Close(); err != nil {
		p.logger.Printf("Failed to close PIR direct-link line: %v", err)
		lastErr = err
	}
	if err := p.serialIn.Close(); err != nil {
		p.logger.Printf("Failed to close PIR serial-in line: %v", err)
		lastErr = err
	}
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			p.logger.Printf("Failed to close GPIO chip: %v", err)
			lastErr = err
		}
	}

	return lastErr
}

func sleepMicros(us int) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}
