package bme680

import "fmt"

// Variant distinguishes the gas sensing front end of the chip.
type Variant byte

const (
	VariantBME680 Variant = 0x00 // low gas variant
	VariantBME688 Variant = 0x01 // high gas variant
)

func (v Variant) String() string {
	switch v {
	case VariantBME680:
		return "BME680"
	case VariantBME688:
		return "BME688"
	default:
		return fmt.Sprintf("unknown(%#x)", byte(v))
	}
}

// Calibration holds the factory trimming parameters of one chip.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int8

	P1  uint16
	P2  int16
	P3  int8
	P4  int16
	P5  int16
	P6  int8
	P7  int8
	P8  int16
	P9  int16
	P10 uint8

	H1 uint16
	H2 uint16
	H3 int8
	H4 int8
	H5 int8
	H6 uint8
	H7 int8

	GH1 int8
	GH2 int16
	GH3 int8

	ResHeatRange uint8
	ResHeatVal   int8
	RangeSwErr   int8
}

// ParseCalibration decodes the three coefficient blocks read from 0x8A (23
// bytes), 0xE1 (14 bytes) and 0x00 (5 bytes).
func ParseCalibration(coeff1, coeff2, coeff3 []byte) (Calibration, error) {
	if len(coeff1) < lenCoeff1 || len(coeff2) < lenCoeff2 || len(coeff3) < lenCoeff3 {
		return Calibration{}, fmt.Errorf("bme680: short calibration data: %d/%d/%d bytes", len(coeff1), len(coeff2), len(coeff3))
	}
	var c Calibration

	c.T2 = int16(le16(coeff1[0:2]))
	c.T3 = int8(coeff1[2])
	c.P1 = le16(coeff1[4:6])
	c.P2 = int16(le16(coeff1[6:8]))
	c.P3 = int8(coeff1[8])
	c.P4 = int16(le16(coeff1[10:12]))
	c.P5 = int16(le16(coeff1[12:14]))
	c.P7 = int8(coeff1[14])
	c.P6 = int8(coeff1[15])
	c.P8 = int16(le16(coeff1[18:20]))
	c.P9 = int16(le16(coeff1[20:22]))
	c.P10 = coeff1[22]

	// H1 and H2 share the nibbles of 0xE2
	c.H2 = uint16(coeff2[0])<<4 | uint16(coeff2[1])>>4
	c.H1 = uint16(coeff2[2])<<4 | uint16(coeff2[1]&0x0F)
	c.H3 = int8(coeff2[3])
	c.H4 = int8(coeff2[4])
	c.H5 = int8(coeff2[5])
	c.H6 = coeff2[6]
	c.H7 = int8(coeff2[7])
	c.T1 = le16(coeff2[8:10])
	c.GH2 = int16(le16(coeff2[10:12]))
	c.GH1 = int8(coeff2[12])
	c.GH3 = int8(coeff2[13])

	c.ResHeatVal = int8(coeff3[0])
	c.ResHeatRange = (coeff3[2] & 0x30) >> 4
	c.RangeSwErr = int8(coeff3[4]&0xF0) / 16

	return c, nil
}

func le16(b []byte) uint16 {
	return uint16(b[1])<<8 | uint16(b[0])
}
