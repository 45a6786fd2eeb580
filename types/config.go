package types

// HAL configuration supplied on topic "config/hal".

type HALConfig struct {
	Devices []HALDevice `json:"devices"`
	Pollers []PollSpec  `json:"pollers,omitempty"`
}

type HALDevice struct {
	ID     string `json:"id"`   // logical device id, e.g. "dht0"
	Type   string `json:"type"` // e.g. "dht22"
	Params any    `json:"params,omitempty"`
}

// DisplayConfig is supplied on topic "config/display".
type DisplayConfig struct {
	Rows    int      `json:"rows"`
	Cols    int      `json:"cols"`
	Sensors []string `json:"sensors"` // device ids, one per row, in order
}

// BridgeConfig is supplied on topic "config/bridge".
type BridgeConfig struct {
	Broker   string `json:"broker"` // e.g. "tcp://localhost:1883"
	ClientID string `json:"client_id,omitempty"`
	Prefix   string `json:"prefix"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}
