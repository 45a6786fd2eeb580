package main

import (
	"sensorcode-go/services/hal"
	"sensorcode-go/services/hal/platform"
)

// openPlatform returns the simulated platform with --sim and the host GPIO
// platform otherwise.
func openPlatform(pins []int) (hal.Platform, error) {
	if flagSim {
		return platform.NewSim(pins...), nil
	}
	return hostPlatform()
}
