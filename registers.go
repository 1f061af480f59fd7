package bme680

// Valid 7-bit bus addresses (SDO low / SDO high).
const (
	AddressLow  byte = 0x76
	AddressHigh byte = 0x77
)

const chipID byte = 0x61

const (
	regCoeff3     byte = 0x00 // res_heat_val, res_heat_range, range_sw_err
	regField0     byte = 0x1D // meas_status_0, first byte of the data field
	regResHeat0   byte = 0x5A
	regGasWait0   byte = 0x64
	regCtrlGas0   byte = 0x70
	regCtrlGas1   byte = 0x71
	regCtrlHum    byte = 0x72
	regCtrlMeas   byte = 0x74
	regConfig     byte = 0x75
	regCoeff1     byte = 0x8A
	regChipID     byte = 0xD0
	regSoftReset  byte = 0xE0
	regCoeff2     byte = 0xE1
	regVariantID  byte = 0xF0
	softResetCode byte = 0xB6
)

const (
	lenCoeff1 = 23
	lenCoeff2 = 14
	lenCoeff3 = 5
	lenField  = 17
)

// meas_status_0 bits
const (
	statusNewData      byte = 0x80
	statusGasMeasuring byte = 0x40
	statusMeasuring    byte = 0x20
)

// gas_r_lsb bits
const (
	gasValidBit  byte = 0x20
	heatStabBit  byte = 0x10
	gasRangeMask byte = 0x0F
)

const (
	heatOffBit    byte = 0x08
	runGasLow     byte = 0x10
	runGasHigh    byte = 0x20
	modeMask      byte = 0x03
	heaterProfile byte = 0x00
)
