package ble

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"tinygo.org/x/bluetooth"
)

// The HM-10 UART bridge profile.
const (
	DefaultServiceUUID        = "0000ffe0-0000-1000-8000-00805f9b34fb"
	DefaultCharacteristicUUID = "0000ffe1-0000-1000-8000-00805f9b34fb"
	DefaultScanTimeout        = 10 * time.Second
	// DefaultWriteChunkSize is the largest write-without-response payload every BLE 4.0
	// peripheral accepts.
	DefaultWriteChunkSize = 20
)

// Config is the attribute set of a ble link.
type Config struct {
	// DeviceName matches the advertised local name. DeviceAddress matches the peripheral
	// address. With neither set, the first device advertising the service is used.
	DeviceName         string        `json:"device_name,omitempty"`
	DeviceAddress      string        `json:"device_address,omitempty"`
	ScanTimeout        time.Duration `json:"scan_timeout,omitempty"`
	ServiceUUID        string        `json:"service_uuid,omitempty"`
	CharacteristicUUID string        `json:"characteristic_uuid,omitempty"`
	WriteChunkSize     int           `json:"write_chunk_size,omitempty"`
}

// Validate fills in defaults and ensures the UUIDs parse.
func (conf *Config) Validate(path string) error {
	if conf.ScanTimeout < 0 {
		return goutils.NewConfigValidationError(path, errors.New("scan_timeout cannot be negative"))
	}
	if conf.WriteChunkSize < 0 {
		return goutils.NewConfigValidationError(path, errors.New("write_chunk_size cannot be negative"))
	}
	if conf.ScanTimeout == 0 {
		conf.ScanTimeout = DefaultScanTimeout
	}
	if conf.WriteChunkSize == 0 {
		conf.WriteChunkSize = DefaultWriteChunkSize
	}
	if conf.ServiceUUID == "" {
		conf.ServiceUUID = DefaultServiceUUID
	}
	if conf.CharacteristicUUID == "" {
		conf.CharacteristicUUID = DefaultCharacteristicUUID
	}
	if _, err := bluetooth.ParseUUID(conf.ServiceUUID); err != nil {
		return goutils.NewConfigValidationError(path, errors.Wrapf(err, "invalid service_uuid %q", conf.ServiceUUID))
	}
	if _, err := bluetooth.ParseUUID(conf.CharacteristicUUID); err != nil {
		return goutils.NewConfigValidationError(path,
			errors.Wrapf(err, "invalid characteristic_uuid %q", conf.CharacteristicUUID))
	}
	return nil
}

func (conf *Config) uuids() (service, characteristic bluetooth.UUID, err error) {
	if service, err = bluetooth.ParseUUID(conf.ServiceUUID); err != nil {
		return
	}
	characteristic, err = bluetooth.ParseUUID(conf.CharacteristicUUID)
	return
}

func (conf *Config) matches(adv advertisement, service bluetooth.UUID) bool {
	switch {
	case conf.DeviceAddress != "":
		return strings.EqualFold(adv.Address(), conf.DeviceAddress)
	case conf.DeviceName != "":
		return adv.LocalName() == conf.DeviceName
	default:
		return adv.HasServiceUUID(service)
	}
}

func (conf *Config) target() string {
	switch {
	case conf.DeviceAddress != "":
		return "address " + conf.DeviceAddress
	case conf.DeviceName != "":
		return "name " + conf.DeviceName
	default:
		return "service " + conf.ServiceUUID
	}
}
