// Package domain models seismic ambient-noise data and the pure transforms
// applied to it.
//
// # Data Source
//
// Waveforms come from FDSN-style web services (e.g. IRIS, ORFEUS nodes).
// A stream is identified by the SEED convention NET.STA.LOC.CHN:
//
//	"CH.DAVOX..HHZ"  →  network CH, station DAVOX, empty location code,
//	                    channel HHZ (high-sample-rate, high-gain, vertical).
//
// Location codes are frequently empty; two consecutive dots are the normal
// representation. Some providers print empty locations as "--", which is
// accepted on parse and normalized to "".
//
// # PSD Tables
//
// A PSDTable holds power spectral density estimates: one row per processing
// window (UTC timestamps, non-decreasing), one column per frequency bin in
// Hz (positive, unique). Cell values are power in dB relative to
// 1 (m/s²)²/Hz, the acceleration-power convention used by probabilistic
// PSD tooling across seismology. NaN marks a missing cell; a column that is
// NaN in every row carries no information and is dropped before any band
// computation.
//
// # Frequency Bands and RMS
//
// A Band is a closed interval [Min, Max] in Hz. ComputeRMS integrates the
// linear power spectrum over each band with the trapezoidal rule and takes
// the square root, yielding one RMS amplitude per table row per band.
// Output columns are keyed by the band label "%.1f-%.1f" (e.g. "4.0-14.0",
// the classic anthropogenic-noise band). Power is converted out of dB with
// the factor-10 power convention, 10^(dB/10): PSD values are already power,
// not amplitude, so the factor-20 amplitude convention must not be used.
//
// Unit selection follows the usual spectral division chain: acceleration
// power is used as-is, dividing once by (2πf)² gives velocity power, and
// dividing twice gives displacement power.
package domain
