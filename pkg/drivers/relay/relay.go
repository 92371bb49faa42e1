// Package relay serves relay-driven devices such as a flat panel cover
// calibrator. Connecting a device switches its relay on; disconnecting
// switches it off.
package relay

import (
	"fmt"
	"html/template"

	"alpacarelay/pkg/alpaca"

	log "github.com/sirupsen/logrus"
)

// Switcher drives a physical relay.
type Switcher interface {
	Switch(relay string, on bool) error
}

// Device is an Alpaca device whose connected state follows a relay.
type Device struct {
	*alpaca.CommonDevice

	relay  string
	sw     Switcher
	logger log.FieldLogger
}

// NewDevice creates a relay device. Switch failures are logged; they never
// change the connected state reported to clients.
func NewDevice(cfg alpaca.DeviceConfig, relay string, hwID uint64, sw Switcher, logger log.FieldLogger) (*Device, error) {
	common, err := alpaca.NewCommonDevice(cfg, hwID, logger)
	if err != nil {
		return nil, err
	}
	if relay == "" {
		return nil, fmt.Errorf("relay name is required for %s", common.DeviceInfo().Name)
	}

	d := &Device{
		CommonDevice: common,
		relay:        relay,
		sw:           sw,
		logger:       logger,
	}

	common.OnConnectedChange(d.switchRelay)
	common.SetupPage().AddPrecontent(func(s alpaca.ContentSession) {
		state := "off"
		if d.Connected() {
			state = "on"
		}
		s.Append(fmt.Sprintf(`<div class="block-holder">Relay %s is %s</div>`, template.HTMLEscapeString(d.relay), state))
	})
	common.SetupPage().AddStyle(`
.block-holder {
    display: flex;
    padding: 10px 20px;
    border-radius: 10px;
    justify-content: space-between;
    align-items: center;
    margin: 1em 0em;
}`)

	return d, nil
}

// Relay returns the name of the relay driven by the device.
func (d *Device) Relay() string {
	return d.relay
}

func (d *Device) switchRelay(on bool) {
	if err := d.sw.Switch(d.relay, on); err != nil {
		d.logger.Errorf("Failed to switch relay %s: %v", d.relay, err)
	}
}

// LogSwitcher only logs relay changes. It is used when no broker is configured.
type LogSwitcher struct {
	Logger log.FieldLogger
}

func (s LogSwitcher) Switch(relay string, on bool) error {
	s.Logger.Infof("Relay %s switched %s", relay, onOff(on))
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
