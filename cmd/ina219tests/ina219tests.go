package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/tigerbot-team/rover/pkg/ina219"
)

func main() {
	device := flag.String("device", "/dev/i2c-1", "I2C bus device")
	addr := flag.Int("addr", ina219.DefaultAddr, "INA219 address")
	shunt := flag.Float64("shunt", 0.1, "shunt resistance (ohms)")
	maxCurrent := flag.Float64("max-current", 2.0, "expected maximum current (amps)")
	flag.Parse()

	sensor, err := ina219.NewI2C(*device, *addr)
	if err != nil {
		fmt.Println("Failed to open ina219", err)
		return
	}
	defer sensor.Close()

	err = sensor.Configure(*shunt, *maxCurrent)
	if err != nil {
		fmt.Println("Failed to configure ina219", err)
		return
	}

	for range time.NewTicker(500 * time.Millisecond).C {
		voltage, err := sensor.ReadBusVoltage()
		fmt.Printf("%.2fV %v ", voltage, err)
		current, err := sensor.ReadCurrent()
		fmt.Printf("%.3fA %v ", current, err)
		power, err := sensor.ReadPower()
		fmt.Printf("%.3fW %v\n", power, err)
	}
}
