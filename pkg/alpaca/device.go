package alpaca

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// DeviceInfo is the entry a device contributes to the configured devices list.
type DeviceInfo struct {
	Name     string `json:"DeviceName"`
	Type     string `json:"DeviceType"`
	Number   int    `json:"DeviceNumber"`
	UniqueID string `json:"UniqueID"`
}

// Device is what the server needs from a device: its identity, the location
// of its setup page, and a way to bind its routes.
type Device interface {
	DeviceInfo() DeviceInfo
	SetupURL() string
	Bind(r *Router, resp *Responder, pages *PageRenderer)
}

// DeviceConfig holds the fixed properties of a device.
type DeviceConfig struct {
	Type             string
	Number           int
	Description      string
	DriverInfo       string
	DriverVersion    string
	InterfaceVersion int
	SupportedActions []string
}

// CommonDevice implements the Alpaca common device API. Drivers embed it and
// add their own routes and setup content.
type CommonDevice struct {
	cfg      DeviceConfig
	info     DeviceInfo
	actions  []string
	page     SetupPage
	onChange []func(connected bool)
	logger   log.FieldLogger

	mu        sync.Mutex
	connected bool
}

// NewCommonDevice derives the device name and unique id from the
// configuration and the host hardware identifier.
func NewCommonDevice(cfg DeviceConfig, hwID uint64, logger log.FieldLogger) (*CommonDevice, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("device type is required")
	}
	if cfg.Number < 0 {
		return nil, fmt.Errorf("invalid device number: %d", cfg.Number)
	}

	uid, err := UniqueID(cfg.Type, cfg.Number, hwID)
	if err != nil {
		return nil, fmt.Errorf("deriving unique id for %s %d: %w", cfg.Type, cfg.Number, err)
	}

	actions := make([]string, len(cfg.SupportedActions))
	copy(actions, cfg.SupportedActions)

	d := &CommonDevice{
		cfg: cfg,
		info: DeviceInfo{
			Name:     fmt.Sprintf("%s %d", cfg.Type, cfg.Number),
			Type:     cfg.Type,
			Number:   cfg.Number,
			UniqueID: uid,
		},
		actions: actions,
		logger:  logger,
	}

	d.page.Title = template.HTML(fmt.Sprintf(
		`<a class="home-link" href="/setup">&#x1F3E0;&nbsp;</a>%s %d`,
		escape(cfg.Type), cfg.Number))
	d.page.AddStyle(`
.home-link {
    text-decoration: none;
}`)
	d.page.AddPrecontent(d.renderInfo)

	return d, nil
}

func (d *CommonDevice) DeviceInfo() DeviceInfo {
	return d.info
}

// APIPrefix returns /api/v1/{type}/{number} with the type in lower case.
func (d *CommonDevice) APIPrefix() string {
	return fmt.Sprintf("/api/v1/%s/%d", strings.ToLower(d.cfg.Type), d.cfg.Number)
}

// SetupURL returns the Alpaca setup page of the device.
func (d *CommonDevice) SetupURL() string {
	return fmt.Sprintf("/setup/v1/%s/%d/setup", strings.ToLower(d.cfg.Type), d.cfg.Number)
}

// SupportedActions returns a copy of the fixed action list.
func (d *CommonDevice) SupportedActions() []string {
	actions := make([]string, len(d.actions))
	copy(actions, d.actions)
	return actions
}

// SetupPage gives drivers access to the setup page to add their own content.
func (d *CommonDevice) SetupPage() *SetupPage {
	return &d.page
}

// OnConnectedChange registers fn to be called after the connected state changes.
func (d *CommonDevice) OnConnectedChange(fn func(connected bool)) {
	d.onChange = append(d.onChange, fn)
}

func (d *CommonDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// SetConnected always succeeds. Hooks run only when the state changes.
func (d *CommonDevice) SetConnected(connected bool) {
	d.mu.Lock()
	changed := d.connected != connected
	d.connected = connected
	d.mu.Unlock()

	if !changed {
		return
	}
	if connected {
		d.logger.Infof("%s connected", d.info.Name)
	} else {
		d.logger.Infof("%s disconnected", d.info.Name)
	}
	for _, fn := range d.onChange {
		fn(connected)
	}
}

// Bind registers the common device routes under the device prefix and the
// setup page under both the api prefix and the Alpaca setup path.
func (d *CommonDevice) Bind(r *Router, resp *Responder, pages *PageRenderer) {
	prefix := d.APIPrefix()

	r.Bind(prefix+"/connected", http.MethodGet, func(ex Exchange) {
		resp.Value(ex, d.Connected())
	})
	r.Bind(prefix+"/connected", http.MethodPut, func(ex Exchange) {
		d.SetConnected(ex.Args().Get("Connected") == "True")
		resp.Value(ex, d.Connected())
	})
	r.Bind(prefix+"/description", http.MethodGet, func(ex Exchange) {
		resp.Value(ex, d.cfg.Description)
	})
	r.Bind(prefix+"/name", http.MethodGet, func(ex Exchange) {
		resp.Value(ex, d.info.Name)
	})
	r.Bind(prefix+"/driverinfo", http.MethodGet, func(ex Exchange) {
		resp.Value(ex, d.driverInfo())
	})
	r.Bind(prefix+"/driverversion", http.MethodGet, func(ex Exchange) {
		resp.Value(ex, d.cfg.DriverVersion)
	})
	r.Bind(prefix+"/interfaceversion", http.MethodGet, func(ex Exchange) {
		resp.Value(ex, d.cfg.InterfaceVersion)
	})
	r.Bind(prefix+"/supportedactions", http.MethodGet, func(ex Exchange) {
		d.logger.Debugf("List of supported actions: %s", strings.Join(d.actions, ", "))
		resp.Value(ex, d.SupportedActions())
	})

	setup := func(ex Exchange) {
		pages.Render(ex, &d.page, nil)
	}
	r.Bind(prefix+"/setup", http.MethodGet, setup)
	r.Bind(d.SetupURL(), http.MethodGet, setup)
}

func (d *CommonDevice) driverInfo() string {
	if d.cfg.DriverInfo != "" {
		return d.cfg.DriverInfo
	}
	return d.cfg.Description
}

func (d *CommonDevice) renderInfo(s ContentSession) {
	s.Append(`<ul class="infoblock">`)
	s.Append("<li>Name:&nbsp;" + escape(d.info.Name) + "</li>")
	s.Append("<li>Type:&nbsp;" + escape(d.info.Type) + "</li>")
	s.Append("<li>Number:&nbsp;" + strconv.Itoa(d.info.Number) + "</li>")
	s.Append("<li>Unique ID:&nbsp;" + escape(d.info.UniqueID) + "</li>")
	s.Append("</ul>")
}
