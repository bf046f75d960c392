package bme280

import "testing"

// Reference calibration/raw values from the BME280 datasheet's own worked
// compensation example.
func referenceDevice() *device {
	d := &device{}
	d.calib.t1 = 27504
	d.calib.t2 = 26435
	d.calib.t3 = -1000
	d.calib.p1 = 36477
	d.calib.p2 = -10685
	d.calib.p3 = 3024
	d.calib.p4 = 2855
	d.calib.p5 = 140
	d.calib.p6 = -7
	d.calib.p7 = 15500
	d.calib.p8 = -14600
	d.calib.p9 = 6000
	return d
}

func TestCompensateTempMatchesDatasheetExample(t *testing.T) {
	d := referenceDevice()
	temp, tFine := d.compensateTemp(519888)
	if temp < 25.0 || temp > 25.2 {
		t.Fatalf("expected ~25.08C, got %v", temp)
	}
	if tFine <= 0 {
		t.Fatalf("expected a positive t_fine, got %d", tFine)
	}
}

func TestCompensatePressureIsPlausible(t *testing.T) {
	d := referenceDevice()
	_, tFine := d.compensateTemp(519888)
	p := d.compensatePressure(415148, tFine) / 100 // Pa -> hPa, as read() does
	if p < 300 || p > 1100 {
		t.Fatalf("expected a plausible sea-level-ish hPa range, got %v", p)
	}
}

func TestCompensateHumidityClampsToPercentRange(t *testing.T) {
	d := referenceDevice()
	d.calib.h1, d.calib.h2, d.calib.h3 = 75, 361, 0
	d.calib.h4, d.calib.h5, d.calib.h6 = 309, 50, 30
	_, tFine := d.compensateTemp(519888)
	h := d.compensateHumidity(32768, tFine)
	if h < 0 || h > 100 {
		t.Fatalf("expected humidity clamped to [0,100], got %v", h)
	}
}
