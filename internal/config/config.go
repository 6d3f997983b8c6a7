package config

import (
	"flag"
	"time"
)

type Config struct {
	RedisHost string
	RedisPort int

	DeviceID string

	GPIOChip       string
	SerialInLine   int
	DirectLinkLine int

	Threshold    uint
	BlindTime    uint
	PulseCounter uint
	WindowTime   uint
	HPFCutoff    uint

	PollInterval       time.Duration
	ActivationInterval time.Duration
	ResponseTimeout    time.Duration

	RequestQueue  string
	ResponseQueue string

	DryRun bool
}

func New() *Config {
	return &Config{
		RedisHost:          "localhost",
		RedisPort:          6379,
		DeviceID:           "motion-0",
		GPIOChip:           "gpiochip0",
		SerialInLine:       17,
		DirectLinkLine:     27,
		Threshold:          24,
		BlindTime:          2,
		PulseCounter:       2,
		WindowTime:         3,
		HPFCutoff:          0,
		PollInterval:       time.Second,
		ActivationInterval: 60 * time.Second,
		ResponseTimeout:    10 * time.Second,
		RequestQueue:       "gateway:requests",
		ResponseQueue:      "gateway:responses",
		DryRun:             false,
	}
}

func (c *Config) Parse() {
	flag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis host")
	flag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")

	flag.StringVar(&c.DeviceID, "device-id", c.DeviceID,
		"Textual device id substituted into gateway resource names")

	flag.StringVar(&c.GPIOChip, "gpio-chip", c.GPIOChip, "GPIO chip for the PIR lines")
	flag.IntVar(&c.SerialInLine, "serial-in-line", c.SerialInLine,
		"GPIO offset of the PIR serial-in (configuration) line")
	flag.IntVar(&c.DirectLinkLine, "direct-link-line", c.DirectLinkLine,
		"GPIO offset of the PIR direct-link (interrupt) line")

	flag.UintVar(&c.Threshold, "pir-threshold", c.Threshold,
		"PIR detection threshold register value (0-255)")
	flag.UintVar(&c.BlindTime, "pir-blind-time", c.BlindTime,
		"PIR blind time register value (0.5s + n*0.5s)")
	flag.UintVar(&c.PulseCounter, "pir-pulse-counter", c.PulseCounter,
		"PIR pulse counter register value (1 + n pulses)")
	flag.UintVar(&c.WindowTime, "pir-window-time", c.WindowTime,
		"PIR window time register value (2s + n*2s)")
	flag.UintVar(&c.HPFCutoff, "pir-hpf-cutoff", c.HPFCutoff,
		"PIR high-pass cutoff (0: 0.4Hz, 1: 0.2Hz)")

	flag.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval,
		"Interval between scheduler poll ticks")
	flag.DurationVar(&c.ActivationInterval, "activation-interval", c.ActivationInterval,
		"Idle time after which a deactivated device is re-activated")
	flag.DurationVar(&c.ResponseTimeout, "response-timeout", c.ResponseTimeout,
		"Time to wait for a gateway response before delivering the timeout sentinel")

	flag.StringVar(&c.RequestQueue, "request-queue", c.RequestQueue,
		"Redis list gateway requests are queued to")
	flag.StringVar(&c.ResponseQueue, "response-queue", c.ResponseQueue,
		"Redis list prefix gateway responses arrive on (suffixed with the device id)")

	flag.BoolVar(&c.DryRun, "dry-run", c.DryRun,
		"Dry run state (don't touch GPIO hardware)")

	flag.Parse()
}
