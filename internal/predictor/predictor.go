// Package predictor implements the FCM and DFCM finite-context predictors
// used by the chunk codec's value column to compute per-sample XOR
// residuals ahead of bit-packing.
//
// Both predictors keep a small table of previously observed bit patterns
// indexed by a running hash of recent values, and predict the next value's
// bit pattern from the table entry the hash currently points to. XORing the
// prediction against the actual value's bits tends to leave a residual with
// many leading zero bits whenever the series is smooth, which the chunk
// codec's bit-packing exploits.
package predictor

// TableSize is the number of entries in a predictor's lookup table (2^7).
const TableSize = 128

const tableMask = TableSize - 1

// FCM predicts the next value's raw bits directly from the table entry at
// the current hash, then folds the just-seen value into that entry.
type FCM struct {
	table [TableSize]uint64
	hash  uint64
}

// NewFCM returns a zero-valued FCM predictor.
func NewFCM() *FCM {
	return &FCM{}
}

// Predict returns the predicted bit pattern for the next value.
func (p *FCM) Predict() uint64 {
	return p.table[p.hash&tableMask]
}

// Update folds the actual observed value (as raw bits) into the table and
// advances the hash.
func (p *FCM) Update(value uint64) {
	p.table[p.hash&tableMask] = value
	p.hash = ((p.hash << 5) ^ (value >> 50)) & tableMask
}

// Reset clears predictor state so it can be reused for a new series.
func (p *FCM) Reset() {
	p.table = [TableSize]uint64{}
	p.hash = 0
}

// DFCM predicts the next value from the table entry at the current hash
// *plus* the last observed value — it models the delta between consecutive
// values rather than the raw bit pattern, which tracks smoothly-varying
// series (e.g. a slowly rising counter) better than plain FCM.
type DFCM struct {
	table     [TableSize]uint64
	hash      uint64
	lastValue uint64
}

// NewDFCM returns a zero-valued DFCM predictor.
func NewDFCM() *DFCM {
	return &DFCM{}
}

// Predict returns the predicted bit pattern for the next value.
func (p *DFCM) Predict() uint64 {
	return p.table[p.hash&tableMask] + p.lastValue
}

// Update folds the actual observed value (as raw bits) into the table and
// advances the hash.
func (p *DFCM) Update(value uint64) {
	delta := value - p.lastValue
	p.table[p.hash&tableMask] = delta
	p.hash = ((p.hash << 5) ^ (delta >> 50)) & tableMask
	p.lastValue = value
}

// Reset clears predictor state so it can be reused for a new series.
func (p *DFCM) Reset() {
	p.table = [TableSize]uint64{}
	p.hash = 0
	p.lastValue = 0
}
