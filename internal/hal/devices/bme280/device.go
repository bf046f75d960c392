package bme280

import (
	"encoding/binary"
	"fmt"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
)

const (
	regCalib1    = 0x88 // 26 bytes: dig_T1..dig_P9
	regCalibH1   = 0xA1 // 1 byte: dig_H1
	regCalibH2   = 0xE1 // 7 bytes: dig_H2..dig_H6
	regCtrlHum   = 0xF2
	regCtrlMeas  = 0xF4
	regConfig    = 0xF5
	regData      = 0xF7 // 8 bytes: press(3) temp(3) hum(2)
	modeNormal   = 0x03
	oversample1x = 0x01
)

type calibration struct {
	t1          uint16
	t2, t3      int16
	p1          uint16
	p2, p3, p4, p5, p6, p7, p8, p9 int16
	h1, h3      uint8
	h2          int16
	h4, h5      int16
	h6          int8
}

// device is a claimed BME280 over a shared I2C bus.
type device struct {
	bus   iohub.I2CHandle
	calib calibration
}

func (d *device) init() error {
	if err := d.readCalibration(); err != nil {
		return err
	}
	if err := d.writeReg(regCtrlHum, oversample1x); err != nil {
		return err
	}
	return d.writeReg(regCtrlMeas, (oversample1x<<5)|(oversample1x<<2)|modeNormal)
}

func (d *device) writeReg(reg, value byte) error {
	return d.bus.Tx(i2cAddr, []byte{reg, value}, nil)
}

func (d *device) readRegs(reg byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if err := d.bus.Tx(i2cAddr, []byte{reg}, out); err != nil {
		return nil, fmt.Errorf("bme280: read 0x%02x: %w", reg, err)
	}
	return out, nil
}

func (d *device) readCalibration() error {
	c1, err := d.readRegs(regCalib1, 26)
	if err != nil {
		return err
	}
	h1, err := d.readRegs(regCalibH1, 1)
	if err != nil {
		return err
	}
	c2, err := d.readRegs(regCalibH2, 7)
	if err != nil {
		return err
	}

	d.calib.t1 = binary.LittleEndian.Uint16(c1[0:2])
	d.calib.t2 = int16(binary.LittleEndian.Uint16(c1[2:4]))
	d.calib.t3 = int16(binary.LittleEndian.Uint16(c1[4:6]))
	d.calib.p1 = binary.LittleEndian.Uint16(c1[6:8])
	d.calib.p2 = int16(binary.LittleEndian.Uint16(c1[8:10]))
	d.calib.p3 = int16(binary.LittleEndian.Uint16(c1[10:12]))
	d.calib.p4 = int16(binary.LittleEndian.Uint16(c1[12:14]))
	d.calib.p5 = int16(binary.LittleEndian.Uint16(c1[14:16]))
	d.calib.p6 = int16(binary.LittleEndian.Uint16(c1[16:18]))
	d.calib.p7 = int16(binary.LittleEndian.Uint16(c1[18:20]))
	d.calib.p8 = int16(binary.LittleEndian.Uint16(c1[20:22]))
	d.calib.p9 = int16(binary.LittleEndian.Uint16(c1[22:24]))
	d.calib.h1 = h1[0]
	d.calib.h2 = int16(binary.LittleEndian.Uint16(c2[0:2]))
	d.calib.h3 = c2[2]
	d.calib.h4 = int16(c2[3])<<4 | int16(c2[4]&0x0f)
	d.calib.h5 = int16(c2[5])<<4 | int16(c2[4]>>4)
	d.calib.h6 = int8(c2[6])
	return nil
}

// read triggers nothing (the sensor free-runs in normal mode) and returns
// compensated Celsius, percent relative humidity, and hPa pressure.
func (d *device) read() (tempC, humidity, pressureHPa float64, err error) {
	raw, err := d.readRegs(regData, 8)
	if err != nil {
		return 0, 0, 0, err
	}
	rawPress := int32(raw[0])<<12 | int32(raw[1])<<4 | int32(raw[2])>>4
	rawTemp := int32(raw[3])<<12 | int32(raw[4])<<4 | int32(raw[5])>>4
	rawHum := int32(raw[6])<<8 | int32(raw[7])

	tempC, tFine := d.compensateTemp(rawTemp)
	pressureHPa = d.compensatePressure(rawPress, tFine) / 100
	humidity = d.compensateHumidity(rawHum, tFine)
	return tempC, humidity, pressureHPa, nil
}

// compensateTemp follows the Bosch BME280 datasheet's floating-point
// compensation formula, returning degrees Celsius and the t_fine value the
// pressure/humidity formulas also need.
func (d *device) compensateTemp(raw int32) (float64, int32) {
	c := &d.calib
	var1 := (float64(raw)/16384.0 - float64(c.t1)/1024.0) * float64(c.t2)
	var2 := (float64(raw)/131072.0 - float64(c.t1)/8192.0)
	var2 = var2 * var2 * float64(c.t3)
	tFine := int32(var1 + var2)
	return (var1 + var2) / 5120.0, tFine
}

func (d *device) compensatePressure(raw, tFine int32) float64 {
	c := &d.calib
	var1 := float64(tFine)/2.0 - 64000.0
	var2 := var1 * var1 * float64(c.p6) / 32768.0
	var2 = var2 + var1*float64(c.p5)*2.0
	var2 = var2/4.0 + float64(c.p4)*65536.0
	var1 = (float64(c.p3)*var1*var1/524288.0 + float64(c.p2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(c.p1)
	if var1 == 0 {
		return 0
	}
	p := 1048576.0 - float64(raw)
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(c.p9) * p * p / 2147483648.0
	var2 = p * float64(c.p8) / 32768.0
	return p + (var1+var2+float64(c.p7))/16.0
}

func (d *device) compensateHumidity(raw, tFine int32) float64 {
	c := &d.calib
	v := float64(tFine) - 76800.0
	v = (float64(raw) - (float64(c.h4)*64.0 + float64(c.h5)/16384.0*v)) *
		(float64(c.h2) / 65536.0 * (1.0 + float64(c.h6)/67108864.0*v*(1.0+float64(c.h3)/67108864.0*v)))
	v = v * (1.0 - float64(c.h1)*v/524288.0)
	switch {
	case v > 100:
		return 100
	case v < 0:
		return 0
	default:
		return v
	}
}
