package dht22

import "tinygo.org/x/drivers"

var _ drivers.Sensor = (*Device)(nil)

// Update implements drivers.Sensor. Any request for temperature or humidity
// triggers one Read; both quantities come from the same frame.
func (d *Device) Update(which drivers.Measurement) error {
	if which&(drivers.Temperature|drivers.Humidity) == 0 {
		return nil
	}
	return d.Read()
}
