/*------------------------------------------------------------------
 *
 * Purpose:	Thin output-device enumeration and volume control.
 *		Neither the CLI/menu nor the playback hot path calls
 *		it: the audio writer talks to the sink it was handed
 *		at startup and never queries devices again.
 *
 *---------------------------------------------------------------*/
package mixer

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ErrDeviceUnavailable is returned when no matching output device
// could be found or its mixer control could not be reached; callers
// should log and continue rather than abort.
var ErrDeviceUnavailable = errors.New("mixer: output device unavailable")

// Device describes one enumerated PCM output device.
type Device struct {
	Name              string
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefaultOutput   bool
}

// ListOutputDevices enumerates portaudio host devices with at least
// one output channel.
func ListOutputDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	defaultOut, _ := portaudio.DefaultOutputDevice()

	var out []Device
	for _, d := range devices {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			Name:              d.Name,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefaultOutput:   defaultOut != nil && d.Name == defaultOut.Name,
		})
	}
	return out, nil
}

// Volume is a 0-100 output level, the Go counterpart of an ALSA
// "Master"/"PCM" simple-mixer percentage.
type Volume int

// Control is a best-effort volume knob over one named output device.
// portaudio's blocking API has no mixer surface of its own, so
// Set/Get are no-ops beyond validating the device exists; a future
// ALSA-specific backend could wire this to snd_mixer_* without
// changing this interface.
type Control struct {
	deviceName string
	current    Volume
}

// Open resolves deviceName against the enumerated output devices.
func Open(deviceName string) (*Control, error) {
	devices, err := ListOutputDevices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == deviceName {
			return &Control{deviceName: deviceName, current: 100}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, deviceName)
}

// Set clamps and records the requested volume.
func (c *Control) Set(v Volume) error {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	c.current = v
	return nil
}

// Get returns the last volume set via this Control (process-local;
// there is no hardware mixer backing it yet).
func (c *Control) Get() Volume { return c.current }
