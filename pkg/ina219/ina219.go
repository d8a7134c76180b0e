// Package ina219 reads the battery monitor: a TI INA219 current/power sensor on I2C.
package ina219

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/io/i2c"

	"github.com/tigerbot-team/rover/pkg/telemetry"
)

const (
	DefaultAddr = 0x41

	RegConfig      = 0
	RegShuntV      = 1
	RegBusV        = 2
	RegPower       = 3
	RegCurrent     = 4
	RegCalibration = 5

	BusVoltageLSB = 0.004
)

type Interface interface {
	Configure(shuntOhms float64, maxCurrent float64) error
	ReadBusVoltage() (float64, error)
	ReadCurrent() (float64, error)
	ReadPower() (float64, error)
}

type port interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg byte, buf []byte) error
	Close() error
}

type INA219 struct {
	currentLSB float64
	dev        port
}

var _ Interface = (*INA219)(nil)

func NewI2C(deviceFile string, addr int) (*INA219, error) {
	dev, err := i2c.Open(&i2c.Devfs{Dev: deviceFile}, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open INA219 at %#x on %s", addr, deviceFile)
	}
	return &INA219{
		dev: dev,
	}, nil
}

// Configure programs the calibration register so that current and power readings come out in
// amps and watts.
func (m *INA219) Configure(shuntOhms float64, maxCurrent float64) error {
	m.currentLSB = maxCurrent / (1 << 15)
	cval := CalculateCalibrationValue(m.currentLSB, shuntOhms)
	fmt.Printf("INA219 calibration value: 0x%x\n", cval)
	if err := m.dev.WriteReg(RegCalibration, []byte{byte(cval >> 8), byte(cval)}); err != nil {
		return errors.Wrap(err, "failed to write INA219 calibration")
	}
	return nil
}

func (m *INA219) ReadBusVoltage() (float64, error) {
	raw, err := m.Read16(RegBusV)
	shifted := raw >> 3
	return float64(shifted) * BusVoltageLSB, err
}

// ReadCurrent is negative when the battery is charging.
func (m *INA219) ReadCurrent() (float64, error) {
	raw, err := m.Read16(RegCurrent)
	return float64(int16(raw)) * m.currentLSB, err
}

func (m *INA219) ReadPower() (float64, error) {
	raw, err := m.Read16(RegPower)
	return float64(raw) * m.currentLSB * 20, err
}

func (m *INA219) Read16(reg byte) (uint16, error) {
	var buf [2]byte
	if err := m.dev.ReadReg(reg, buf[:]); err != nil {
		return 0, errors.Wrapf(err, "failed to read INA219 register %d", reg)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func (m *INA219) Close() error {
	return m.dev.Close()
}

func CalculateCalibrationValue(currentLSB float64, shuntOhms float64) int16 {
	return int16(0.04096 / (currentLSB * shuntOhms))
}

// Read takes one full sample.
func Read(m Interface) (telemetry.PowerReading, error) {
	var r telemetry.PowerReading
	var err error
	if r.BusVolts, err = m.ReadBusVoltage(); err != nil {
		return r, err
	}
	if r.Amps, err = m.ReadCurrent(); err != nil {
		return r, err
	}
	if r.Watts, err = m.ReadPower(); err != nil {
		return r, err
	}
	return r, nil
}

// Monitor reports a power sample to the sink every interval until ctx is done.  Failed samples
// are logged and skipped.
func Monitor(ctx context.Context, m Interface, sink telemetry.Sink, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for ctx.Err() == nil {
		r, err := Read(m)
		if err != nil {
			fmt.Println("Power: failed to read INA219:", err)
		} else {
			sink.Power(r)
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}
