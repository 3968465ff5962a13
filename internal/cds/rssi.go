package cds

// rssiAlpha is the EWMA smoothing factor from §3: s <- (1-alpha)*s + alpha*rssi.
const rssiAlpha = 0.30

// ewmaRSSI folds a freshly observed RSSI sample into a smoothed running
// value. Called once per received beacon from a given neighbor.
func ewmaRSSI(smoothed, sample float64) float64 {
	return (1-rssiAlpha)*smoothed + rssiAlpha*sample
}

// rssiMagnitudeToDBm converts an on-wire unsigned RSSI magnitude byte
// (0..255) to the signed dBm value it represents. The wire form is the
// negation of the integer dBm reading (§3).
func rssiMagnitudeToDBm(mag byte) int {
	return -int(mag)
}

// dBmToRSSIMagnitude converts a signed dBm reading to the on-wire
// unsigned magnitude byte. Values are clamped to [-255, 0] so that
// degenerate inputs (a buggy driver reporting RSSI < -255) never
// overflow the single wire byte.
func dBmToRSSIMagnitude(dBm int) byte {
	mag := -dBm
	switch {
	case mag < 0:
		return 0
	case mag > 255:
		return 255
	default:
		return byte(mag)
	}
}
