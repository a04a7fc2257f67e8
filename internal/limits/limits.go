// Package limits centralizes the fixed capacity bounds shared by the
// string pool, series name canonicalizer, and chunk codec, mirroring the
// teacher's habit of collecting magic numbers behind named constants
// rather than scattering them through call sites.
package limits

const (
	// MaxSeriesName bounds a canonical series name's length in bytes.
	MaxSeriesName = 4096

	// MaxTags bounds the number of tag=value pairs a series name may carry.
	MaxTags = 32

	// MaxStringPoolBin bounds the size of one string pool bin (~8 MiB).
	MaxStringPoolBin = 8 * 1024 * 1024
)
