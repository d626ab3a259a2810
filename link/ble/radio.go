package ble

import (
	goutils "go.viam.com/utils"
	"tinygo.org/x/bluetooth"
)

// radio is the part of a bluetooth adapter the transport needs.
type radio interface {
	Enable() error
	// Scan calls found for every advertisement until found returns true or StopScan is called.
	Scan(found func(advertisement) bool) error
	StopScan() error
	Connect(adv advertisement) (peripheral, error)
}

type advertisement interface {
	Address() string
	LocalName() string
	HasServiceUUID(bluetooth.UUID) bool
}

type peripheral interface {
	Characteristic(service, characteristic bluetooth.UUID) (characteristicWriter, error)
	Disconnect() error
}

type characteristicWriter interface {
	WriteWithoutResponse(p []byte) (int, error)
}

type adapterRadio struct {
	adapter *bluetooth.Adapter
}

func (r adapterRadio) Enable() error {
	return r.adapter.Enable()
}

func (r adapterRadio) Scan(found func(advertisement) bool) error {
	return r.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if found(scanResult{result: result}) {
			goutils.UncheckedError(a.StopScan())
		}
	})
}

func (r adapterRadio) StopScan() error {
	return r.adapter.StopScan()
}

func (r adapterRadio) Connect(adv advertisement) (peripheral, error) {
	result, ok := adv.(scanResult)
	if !ok {
		return nil, errUnknownAdvertisement
	}
	dev, err := r.adapter.Connect(result.result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	return device{dev: dev}, nil
}

type scanResult struct {
	result bluetooth.ScanResult
}

func (s scanResult) Address() string {
	return s.result.Address.String()
}

func (s scanResult) LocalName() string {
	return s.result.LocalName()
}

func (s scanResult) HasServiceUUID(uuid bluetooth.UUID) bool {
	return s.result.HasServiceUUID(uuid)
}

type device struct {
	dev bluetooth.Device
}

func (d device) Characteristic(service, characteristic bluetooth.UUID) (characteristicWriter, error) {
	services, err := d.dev.DiscoverServices([]bluetooth.UUID{service})
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, errServiceNotFound
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{characteristic})
	if err != nil {
		return nil, err
	}
	if len(chars) == 0 {
		return nil, errCharacteristicNotFound
	}
	char := chars[0]
	return &char, nil
}

func (d device) Disconnect() error {
	return d.dev.Disconnect()
}
