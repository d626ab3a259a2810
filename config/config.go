// Package config defines the structures to configure the bledrive server and the motor
// controller, and how to read them from disk.
package config

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// Defaults applied by Config.ApplyDefaults.
const (
	DefaultListen       = ":8080"
	DefaultLinkType     = "ble"
	DefaultQueueSize    = 16
	DefaultRadius       = 180.0
	DefaultDeadzone     = 40.0
	DefaultHandleRadius = 35.0
	DefaultProtocol     = "auto"
)

// DefaultPins are the H-bridge input pins of the reference wiring.
var DefaultPins = Pins{IN1: "2", IN2: "3", IN3: "4", IN4: "5"}

// An AttributeMap is a convenience wrapper for pulling out typed information from an untyped map.
type AttributeMap map[string]interface{}

// Config is the top level configuration.
type Config struct {
	Web        Web        `json:"web"`
	Link       Link       `json:"link"`
	Joystick   Joystick   `json:"joystick"`
	Controller Controller `json:"controller"`

	// ConfigFilePath is the path this config was read from, if any.
	ConfigFilePath string `json:"-"`
}

// Web configures the HTTP server that hosts the control page.
type Web struct {
	Listen string `json:"listen"`
	// Pprof serves the runtime profiles under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}

// Link configures the transport to the robot. Attributes are specific to Type and are
// converted by the transport's registered converter.
type Link struct {
	Type       string       `json:"type"`
	QueueSize  int          `json:"queue_size,omitempty"`
	Attributes AttributeMap `json:"attributes,omitempty"`

	ConvertedAttributes interface{} `json:"-"`
}

// Joystick configures the on-page joystick geometry, in input units (pixels).
type Joystick struct {
	Radius       float64 `json:"radius"`
	Deadzone     float64 `json:"deadzone"`
	HandleRadius float64 `json:"handle_radius"`
}

// Controller configures the motor controller firmware.
type Controller struct {
	Pins     Pins   `json:"pins"`
	Protocol string `json:"protocol"`
}

// Pins names the four H-bridge inputs. IN1/IN2 drive the left motor, IN3/IN4 the right.
type Pins struct {
	IN1 string `json:"in1"`
	IN2 string `json:"in2"`
	IN3 string `json:"in3"`
	IN4 string `json:"in4"`
}

// ApplyDefaults fills in any unset values.
func (c *Config) ApplyDefaults() {
	if c.Web.Listen == "" {
		c.Web.Listen = DefaultListen
	}
	c.Link.ApplyDefaults()
	c.Joystick.ApplyDefaults()
	c.Controller.ApplyDefaults()
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.Web.Listen == "" {
		return goutils.NewConfigValidationFieldRequiredError("web", "listen")
	}
	if err := c.Link.Validate("link"); err != nil {
		return err
	}
	if err := c.Joystick.Validate("joystick"); err != nil {
		return err
	}
	return c.Controller.Validate("controller")
}

// ApplyDefaults fills in any unset values.
func (l *Link) ApplyDefaults() {
	if l.Type == "" {
		l.Type = DefaultLinkType
	}
	if l.QueueSize == 0 {
		l.QueueSize = DefaultQueueSize
	}
}

// Validate ensures all parts of the config are valid.
func (l *Link) Validate(path string) error {
	if l.Type == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "type")
	}
	if l.QueueSize < 1 {
		return goutils.NewConfigValidationError(path, errors.Errorf("queue_size must be positive, got %d", l.QueueSize))
	}
	return nil
}

// ApplyDefaults fills in any unset values.
func (j *Joystick) ApplyDefaults() {
	if j.Radius == 0 {
		j.Radius = DefaultRadius
	}
	if j.Deadzone == 0 {
		j.Deadzone = DefaultDeadzone
	}
	if j.HandleRadius == 0 {
		j.HandleRadius = DefaultHandleRadius
	}
}

// Validate ensures all parts of the config are valid.
func (j *Joystick) Validate(path string) error {
	if j.Radius <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("radius must be positive, got %v", j.Radius))
	}
	if j.Deadzone < 0 || j.Deadzone >= j.Radius {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("deadzone must be in [0, radius), got %v with radius %v", j.Deadzone, j.Radius))
	}
	if j.HandleRadius < 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("handle_radius must not be negative, got %v", j.HandleRadius))
	}
	return nil
}

// ApplyDefaults fills in any unset values.
func (c *Controller) ApplyDefaults() {
	if c.Pins == (Pins{}) {
		c.Pins = DefaultPins
	}
	if c.Protocol == "" {
		c.Protocol = DefaultProtocol
	}
}

// Validate ensures all parts of the config are valid.
func (c *Controller) Validate(path string) error {
	pins := map[string]string{"in1": c.Pins.IN1, "in2": c.Pins.IN2, "in3": c.Pins.IN3, "in4": c.Pins.IN4}
	seen := map[string]string{}
	for _, field := range []string{"in1", "in2", "in3", "in4"} {
		pin := pins[field]
		if pin == "" {
			return goutils.NewConfigValidationFieldRequiredError(path+".pins", field)
		}
		if other, ok := seen[pin]; ok {
			return goutils.NewConfigValidationError(path+".pins",
				errors.Errorf("pin %q is used by both %s and %s", pin, other, field))
		}
		seen[pin] = field
	}
	switch c.Protocol {
	case "", "auto", "discrete", "continuous", "joystick":
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown protocol %q", c.Protocol))
	}
	return nil
}
