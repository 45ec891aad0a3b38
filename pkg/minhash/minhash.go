// Package minhash implements MinHash sketches for Jaccard similarity estimation.
//
// A MinHash sketch summarizes a set of byte-string elements as a fixed-length
// vector of minimum hash values, one per permutation function. The fraction of
// positions on which two sketches agree is an unbiased estimator of the Jaccard
// similarity of the underlying sets, with standard error O(1/sqrt(numPerm)).
//
// Elements are hashed with xxhash (64-bit, folded to a 32-bit domain) so that
// sketches built in different processes from the same elements are identical.
// The permutation functions are universal hashes (a*h + b) mod p over the
// Mersenne prime p = 2^61 - 1, with (a, b) drawn from a seeded generator. Two
// sketches are comparable only if they share the same seed and length.
package minhash

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const (
	// mersennePrime is the modulus of the universal hash family.
	mersennePrime uint64 = (1 << 61) - 1

	// maxHash is the largest value a slot can hold; it is also the identity
	// element for the running minimum.
	maxHash uint64 = (1 << 32) - 1

	// DefaultNumPerm is the conventional sketch length.
	DefaultNumPerm = 128

	// DefaultSeed is used when the caller has no reproducibility needs beyond
	// cross-process consistency.
	DefaultSeed uint64 = 1
)

// ErrParameterMismatch is returned when two sketches with different lengths or
// seeds are merged or compared.
var ErrParameterMismatch = errors.New("minhash: signature parameters do not match")

// permutations holds the (a, b) coefficient pairs of the universal hash
// family. It is created once per (seed, numPerm) pair and shared read-only by
// every sketch built with those parameters.
type permutations struct {
	a []uint64
	b []uint64
}

type permKey struct {
	seed    uint64
	numPerm int
}

var permCache sync.Map // permKey -> *permutations

// permsFor returns the shared coefficient pairs for the given parameters,
// generating them on first use. Generation is deterministic in the seed.
func permsFor(numPerm int, seed uint64) *permutations {
	key := permKey{seed: seed, numPerm: numPerm}
	if v, ok := permCache.Load(key); ok {
		return v.(*permutations)
	}

	rng := rand.New(rand.NewSource(int64(seed)))
	p := &permutations{
		a: make([]uint64, numPerm),
		b: make([]uint64, numPerm),
	}
	for i := 0; i < numPerm; i++ {
		// a must be non-zero for the hash family to be universal.
		p.a[i] = uint64(rng.Int63n(int64(mersennePrime-1))) + 1
		p.b[i] = uint64(rng.Int63n(int64(mersennePrime)))
	}

	actual, _ := permCache.LoadOrStore(key, p)
	return actual.(*permutations)
}

// MinHash is a fixed-length sketch of a set. The zero value is not usable;
// construct with New or Deserialize.
type MinHash struct {
	seed   uint64
	perm   *permutations
	values []uint64
}

// New creates an empty sketch with numPerm slots, all initialized to the
// identity value. Sketches with the same numPerm and seed are comparable and
// mergeable.
func New(numPerm int, seed uint64) (*MinHash, error) {
	if numPerm <= 0 {
		return nil, fmt.Errorf("minhash: number of permutations must be positive, got %d", numPerm)
	}

	m := &MinHash{
		seed:   seed,
		perm:   permsFor(numPerm, seed),
		values: make([]uint64, numPerm),
	}
	for i := range m.values {
		m.values[i] = maxHash
	}
	return m, nil
}

// Update folds one element into the sketch. Updating with an element already
// reflected in the minimums leaves the sketch unchanged.
func (m *MinHash) Update(element []byte) {
	h := xxhash.Sum64(element) & maxHash
	for i := range m.values {
		v := permute(m.perm.a[i], m.perm.b[i], h)
		if v < m.values[i] {
			m.values[i] = v
		}
	}
}

// UpdateString is Update for string elements without forcing the caller to
// convert.
func (m *MinHash) UpdateString(element string) {
	m.Update([]byte(element))
}

// permute applies one universal hash function to the base hash h and folds the
// result back into the 32-bit domain.
func permute(a, b, h uint64) uint64 {
	hi, lo := bits.Mul64(a, h)
	r := modMersenne(hi, lo) + b
	if r >= mersennePrime {
		r -= mersennePrime
	}
	return r & maxHash
}

// modMersenne reduces the 128-bit value hi*2^64 + lo modulo 2^61 - 1.
// Since 2^64 ≡ 8 (mod 2^61 - 1) the reduction is a shift-and-add fold.
func modMersenne(hi, lo uint64) uint64 {
	r := (lo & mersennePrime) + (lo >> 61) + hi<<3
	for r >= mersennePrime {
		r -= mersennePrime
	}
	return r
}

// Jaccard estimates the Jaccard similarity between the sets summarized by m
// and o as the fraction of agreeing slots. Two empty sketches estimate 1.0:
// every slot still holds the identity value, so all slots agree.
func (m *MinHash) Jaccard(o *MinHash) (float64, error) {
	if !m.Comparable(o) {
		return 0, ErrParameterMismatch
	}

	matches := 0
	for i, v := range m.values {
		if v == o.values[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(m.values)), nil
}

// Merge folds o into m in place. The result is the sketch of the union of the
// two original sets. Returns ErrParameterMismatch when the sketches do not
// share length and seed.
func (m *MinHash) Merge(o *MinHash) error {
	if !m.Comparable(o) {
		return ErrParameterMismatch
	}

	for i, v := range o.values {
		if v < m.values[i] {
			m.values[i] = v
		}
	}
	return nil
}

// Union returns the merged sketch of a and b without modifying either.
func Union(a, b *MinHash) (*MinHash, error) {
	out := a.Copy()
	if err := out.Merge(b); err != nil {
		return nil, err
	}
	return out, nil
}

// Comparable reports whether m and o share the parameters required for
// Jaccard and Merge.
func (m *MinHash) Comparable(o *MinHash) bool {
	return o != nil && m.seed == o.seed && len(m.values) == len(o.values)
}

// Equal reports whether m and o have identical parameters and slot values.
func (m *MinHash) Equal(o *MinHash) bool {
	if !m.Comparable(o) {
		return false
	}
	for i, v := range m.values {
		if v != o.values[i] {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no element has ever lowered a slot.
func (m *MinHash) IsEmpty() bool {
	for _, v := range m.values {
		if v != maxHash {
			return false
		}
	}
	return true
}

// Copy returns an independent sketch with the same parameters and values.
func (m *MinHash) Copy() *MinHash {
	values := make([]uint64, len(m.values))
	copy(values, m.values)
	return &MinHash{seed: m.seed, perm: m.perm, values: values}
}

// NumPerm returns the sketch length.
func (m *MinHash) NumPerm() int { return len(m.values) }

// Seed returns the seed the permutation coefficients were drawn with.
func (m *MinHash) Seed() uint64 { return m.seed }

// Values returns the slot vector. The slice is the sketch's backing storage
// and must not be modified.
func (m *MinHash) Values() []uint64 { return m.values }

// ExactJaccard computes the true Jaccard similarity of two element slices,
// treating each as a set. Two empty sets have similarity 1.0, matching the
// sketch convention.
func ExactJaccard(a, b [][]byte) float64 {
	as := make(map[string]struct{}, len(a))
	for _, e := range a {
		as[string(e)] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, e := range b {
		bs[string(e)] = struct{}{}
	}

	if len(as) == 0 && len(bs) == 0 {
		return 1.0
	}

	intersection := 0
	for e := range as {
		if _, ok := bs[e]; ok {
			intersection++
		}
	}
	union := len(as) + len(bs) - intersection
	return float64(intersection) / float64(union)
}
