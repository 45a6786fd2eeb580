// Command dhtmon polls DHT22 sensors and publishes their readings.
package main

import "os"

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}
