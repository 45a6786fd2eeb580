//go:build !linux

package main

import (
	"errors"

	"sensorcode-go/services/hal"
)

func hostPlatform() (hal.Platform, error) {
	return nil, errors.New("GPIO access needs linux; run with --sim")
}
