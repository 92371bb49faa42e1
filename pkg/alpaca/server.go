// Documentation: https://ascom-standards.org/api/?urls.primaryName=ASCOM+Alpaca+Management+API

package alpaca

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

type ServerDescription struct {
	Name                string `json:"ServerName"`
	Manufacturer        string `json:"Manufacturer"`
	ManufacturerVersion string `json:"ManufacturerVersion"`
	Location            string `json:"Location"`
}

// Server is an Alpaca management server that provides information
// about the server and the devices it manages.
type Server struct {
	description ServerDescription
	devices     []Device

	resp   *Responder
	pages  *PageRenderer
	page   SetupPage
	logger log.FieldLogger
}

// NewServer creates a server with no devices. Every response it and its
// devices send goes through resp.
func NewServer(description ServerDescription, resp *Responder, pages *PageRenderer, logger log.FieldLogger) *Server {
	s := Server{
		description: description,
		resp:        resp,
		pages:       pages,
		logger:      logger,
	}

	s.page.Title = template.HTML(escape(description.Name))
	s.page.AddStyle(`
.device-link a, .device-link a {
    text-decoration: none;
    color: #cfcaca;
}
.device-link {
    background-color: #2b2b2b;
    background: linear-gradient(0deg, rgb(0 0 0) 0%, rgb(102 102 102) 100%);
    border: none;
    color: white;
    padding: 1em 1.5em;
    text-align: center;
    text-decoration: none;
    display: inline-block;
    font-size: 16px;
    margin: 0.5em 0.2em;
    cursor: pointer;
    border-radius: 1em;
}
@media (prefers-color-scheme: dark) {
    .device-link a, .device-link {
        color: #4b4848;
    }
    .device-link {
        background-color: #ffffff;
        background: linear-gradient(0deg, rgb(104 104 104) 0%, rgb(217 217 217) 100%);
    }
}`)

	return &s
}

// AddDevice registers a device. Devices are listed in the order they were
// added. Adding a second device with the same type and number fails.
func (s *Server) AddDevice(dev Device) error {
	info := dev.DeviceInfo()
	for _, d := range s.devices {
		other := d.DeviceInfo()
		if strings.EqualFold(other.Type, info.Type) && other.Number == info.Number {
			return fmt.Errorf("%w: %s %d", ErrDuplicateDevice, info.Type, info.Number)
		}
	}

	s.logger.Infof("Adding device %s (%s)", info.Name, info.UniqueID)
	s.devices = append(s.devices, dev)
	return nil
}

// Devices returns the registered devices in registration order.
func (s *Server) Devices() []Device {
	return s.devices
}

// AddRoutes binds the management API, the setup page and the routes of
// every registered device.
func (s *Server) AddRoutes(r *Router) {
	r.Bind("/management/apiversions", http.MethodGet, s.handleAPIVersions)
	r.Bind("/management/v1/description", http.MethodGet, s.handleDescription)
	r.Bind("/management/v1/configureddevices", http.MethodGet, s.handleConfiguredDevices)
	r.Bind("/setup", http.MethodGet, s.handleSetup)

	for _, dev := range s.devices {
		dev.Bind(r, s.resp, s.pages)
	}
}

func (s *Server) handleAPIVersions(ex Exchange) {
	s.resp.Value(ex, []int{1})
}

func (s *Server) handleDescription(ex Exchange) {
	s.resp.Value(ex, s.description)
}

func (s *Server) handleConfiguredDevices(ex Exchange) {
	deviceInfo := make([]DeviceInfo, 0, len(s.devices))
	for _, device := range s.devices {
		deviceInfo = append(deviceInfo, device.DeviceInfo())
	}

	s.resp.Value(ex, deviceInfo)
}

// handleSetup lists a link to the setup page of each device.
func (s *Server) handleSetup(ex Exchange) {
	s.pages.Render(ex, &s.page, func(c ContentSession) {
		c.Append("<h1>Setup main page</h1>")
		for _, dev := range s.devices {
			c.Append(fmt.Sprintf(`<a class="device-link" href="%s">Configuration %s</a><br/>`,
				escape(dev.SetupURL()), escape(dev.DeviceInfo().Name)))
		}
	})
}

// RootURL returns the base URL clients use to reach the server.
func RootURL(host string, port int) string {
	return fmt.Sprintf("http://%s/", joinHostPort(host, port))
}
