// Package config loads the driver's tunables from a JSON blob the way
// the platform config service publishes device settings: parsed with
// tinyjson's raw-value decoder into a generic map and pulled out field
// by field, defensively, rather than via a struct-tag unmarshaller.
package config

import (
	"errors"
	"time"

	"github.com/andreyvit/tinyjson"

	"github.com/jangala-dev/cyw43go/control"
)

// Config holds the knobs a board bring-up needs to hand the driver:
// which network to join and how, the power mode once associated,
// which of the chip's spare GPIOs (if any) to drive during bring-up,
// and the transport-level tunables (CLM chunk size, ioctl timeout,
// periodic wake interval, TX/RX queue depths) a board may want to
// adjust away from the spec's defaults.
type Config struct {
	SSID       string
	Passphrase string // empty means JoinOpen instead of JoinWPA2
	PowerMode  control.PowerMode
	GPIOs      []GPIOSetting

	Tunables     control.Tunables
	PeriodicWake time.Duration
	TxQueueBytes int
	RxQueueBytes int
}

const defaultQueueBytes = 4096

// GPIOSetting is one cyw43 spare GPIO line to drive during bring-up.
type GPIOSetting struct {
	Pin uint8
	On  bool
}

var ErrNotAnObject = errors.New("cyw43go/config: embedded config is not a JSON object")

// Parse decodes raw into a Config, defaulting every field tinyjson
// can't find or type-assert cleanly — a malformed or partial config
// degrades to the field's zero value (defaultQueueBytes for the two
// queue sizes) rather than failing outright, mirroring the
// embedded-config publisher's own leniency.
func Parse(raw []byte) (Config, error) {
	cfg := Config{
		TxQueueBytes: defaultQueueBytes,
		RxQueueBytes: defaultQueueBytes,
	}

	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return cfg, ErrNotAnObject
	}

	if s, ok := m["ssid"].(string); ok {
		cfg.SSID = s
	}
	if s, ok := m["passphrase"].(string); ok {
		cfg.Passphrase = s
	}
	cfg.PowerMode = parsePowerMode(m["power_mode"])
	cfg.GPIOs = parseGPIOs(m["gpios"])

	if n, ok := m["clm_chunk_size"].(float64); ok {
		cfg.Tunables.ClmChunkSize = int(n)
	}
	if ms, ok := m["ioctl_timeout_ms"].(float64); ok {
		cfg.Tunables.IoctlTimeout = time.Duration(ms) * time.Millisecond
	}
	if ms, ok := m["periodic_wake_ms"].(float64); ok {
		cfg.PeriodicWake = time.Duration(ms) * time.Millisecond
	}
	if n, ok := m["tx_queue_bytes"].(float64); ok {
		cfg.TxQueueBytes = int(n)
	}
	if n, ok := m["rx_queue_bytes"].(float64); ok {
		cfg.RxQueueBytes = int(n)
	}
	cfg.TxQueueBytes = roundUpPow2(cfg.TxQueueBytes)
	cfg.RxQueueBytes = roundUpPow2(cfg.RxQueueBytes)

	return cfg, nil
}

// roundUpPow2 rounds n up to the nearest power of two >= 2, the shape
// netif.FrameQueue's underlying shmring.Ring requires of its capacity;
// n below 2 yields defaultQueueBytes.
func roundUpPow2(n int) int {
	if n < 2 {
		return defaultQueueBytes
	}
	p := 2
	for p < n {
		p <<= 1
	}
	return p
}

func parsePowerMode(v any) control.PowerMode {
	s, ok := v.(string)
	if !ok {
		return control.PMNone
	}
	switch s {
	case "aggressive":
		return control.PMAggressive
	case "balanced":
		return control.PMBalanced
	case "power_save":
		return control.PMPowerSave
	default:
		return control.PMNone
	}
}

func parseGPIOs(v any) []GPIOSetting {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]GPIOSetting, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pinF, ok := entry["pin"].(float64)
		if !ok {
			continue
		}
		on, _ := entry["on"].(bool)
		out = append(out, GPIOSetting{Pin: uint8(pinF), On: on})
	}
	return out
}
