//go:build linux

package main

import (
	"sensorcode-go/services/hal"
	"sensorcode-go/services/hal/platform"
)

func hostPlatform() (hal.Platform, error) { return platform.NewPeriph() }
