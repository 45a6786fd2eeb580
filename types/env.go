package types

// ------------------------
// Temperature & humidity
// ------------------------

// DHT22Params configures one single-wire DHT22 sensor.
type DHT22Params struct {
	Pin               int    `json:"pin"`
	TimeoutUs         uint32 `json:"timeout_us,omitempty"` // per-edge wait bound; 0 = driver default
	SignedTemperature bool   `json:"signed_temperature,omitempty"`
}

type TemperatureInfo struct {
	Sensor string `json:"sensor"` // "dht22"
	Pin    int    `json:"pin"`
}

type HumidityInfo struct {
	Sensor string `json:"sensor"`
	Pin    int    `json:"pin"`
}

type TemperatureValue struct {
	// Tenths of °C (e.g. 231 => 23.1°C). Unsigned sensors can report up to
	// 6553.5°C, which does not fit an int16.
	DeciC int32 `json:"deci_c"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
}
