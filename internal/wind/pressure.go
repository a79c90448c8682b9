package wind

import "math"

// Levels are the isobaric levels (hPa) extracted from each forecast file,
// from the top of the stratosphere down to the surface.
var Levels = []float64{
	1, 2, 3, 5, 7, 10, 20, 30, 50, 70, 100, 150, 200, 250, 300, 350,
	400, 450, 500, 550, 600, 650, 700, 750, 800, 850, 900, 925, 950, 975, 1000,
}

// ICAO standard atmosphere layer bases.
const (
	seaLevelPressure = 1013.25 // hPa
	seaLevelTemp     = 288.15  // K

	tropopauseAlt      = 11000.0
	tropopausePressure = 226.321
	tropopauseTemp     = 216.65

	strato1Alt      = 20000.0
	strato1Pressure = 54.7489

	strato2Alt      = 32000.0
	strato2Pressure = 8.68019
	strato2Temp     = 228.65

	stratopauseAlt      = 47000.0
	stratopausePressure = 1.10906
	stratopauseTemp     = 270.65

	gasConstant = 287.053 // J/(kg·K), dry air
	gravity     = 9.80665 // m/s²
)

// PressureToAltitude returns the geopotential altitude in metres of the given
// pressure in hPa under the ICAO standard atmosphere. Valid from the surface
// up to roughly 51 km.
func PressureToAltitude(hPa float64) float64 {
	switch {
	case hPa >= tropopausePressure:
		// Troposphere, lapse rate 6.5 K/km.
		const lapse = 0.0065
		exp := gasConstant * lapse / gravity
		return seaLevelTemp / lapse * (1 - math.Pow(hPa/seaLevelPressure, exp))
	case hPa >= strato1Pressure:
		// Tropopause, isothermal.
		h := gasConstant * tropopauseTemp / gravity
		return tropopauseAlt - h*math.Log(hPa/tropopausePressure)
	case hPa >= strato2Pressure:
		// Lower stratosphere, lapse rate -1 K/km.
		const lapse = -0.001
		exp := gasConstant * lapse / gravity
		temp := tropopauseTemp * math.Pow(hPa/strato1Pressure, exp)
		return strato1Alt + (temp-tropopauseTemp)/-lapse
	case hPa >= stratopausePressure:
		// Upper stratosphere, lapse rate -2.8 K/km.
		const lapse = -0.0028
		exp := gasConstant * lapse / gravity
		temp := strato2Temp * math.Pow(hPa/strato2Pressure, exp)
		return strato2Alt + (temp-strato2Temp)/-lapse
	default:
		// Stratopause, isothermal.
		h := gasConstant * stratopauseTemp / gravity
		return stratopauseAlt - h*math.Log(hPa/stratopausePressure)
	}
}
