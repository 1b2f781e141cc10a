// Package timebase provides exact rational time arithmetic for sampling grids.
//
// Sampling steps such as 1/30 s cannot be represented exactly in nanoseconds, and
// summing millions of rounded steps drifts. Time and Duration keep an exact rational
// number of seconds instead, backed by math/big.Rat.
//
// Both types are immutable values: every operation allocates a new rational and the
// zero value is zero seconds (or the Unix epoch for Time).
package timebase

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

var (
	microsPerSecond = big.NewRat(1_000_000, 1)
	nanosPerSecond  = big.NewInt(1_000_000_000)
	half            = big.NewRat(1, 2)
)

// Duration is an exact rational number of seconds.
type Duration struct {
	r *big.Rat
}

// Seconds returns num/den seconds. It panics when den is zero.
func Seconds(num, den int64) Duration {
	return Duration{r: big.NewRat(num, den)}
}

// Hz returns the step duration of a sampling rate of num/den samples per second.
func Hz(num, den int64) Duration {
	return Duration{r: big.NewRat(den, num)}
}

// MicrosDuration returns us microseconds.
func MicrosDuration(us int64) Duration {
	return Duration{r: big.NewRat(us, 1_000_000)}
}

// FromStdDuration converts a time.Duration.
func FromStdDuration(d time.Duration) Duration {
	return Duration{r: new(big.Rat).SetFrac(big.NewInt(int64(d)), nanosPerSecond)}
}

// DurationFromRat returns a Duration holding a copy of r.
func DurationFromRat(r *big.Rat) Duration {
	if r == nil {
		return Duration{}
	}

	return Duration{r: new(big.Rat).Set(r)}
}

func (d Duration) rat() *big.Rat {
	if d.r == nil {
		return new(big.Rat)
	}

	return d.r
}

// Rat returns a copy of the duration in seconds.
func (d Duration) Rat() *big.Rat {
	return new(big.Rat).Set(d.rat())
}

// Add returns d+o.
func (d Duration) Add(o Duration) Duration {
	return Duration{r: new(big.Rat).Add(d.rat(), o.rat())}
}

// Sub returns d-o.
func (d Duration) Sub(o Duration) Duration {
	return Duration{r: new(big.Rat).Sub(d.rat(), o.rat())}
}

// Mul returns d*n.
func (d Duration) Mul(n int64) Duration {
	return Duration{r: new(big.Rat).Mul(d.rat(), new(big.Rat).SetInt64(n))}
}

// MulUint returns d*n for unsigned counts.
func (d Duration) MulUint(n uint64) Duration {
	return Duration{r: new(big.Rat).Mul(d.rat(), new(big.Rat).SetUint64(n))}
}

// Half returns d/2.
func (d Duration) Half() Duration {
	return Duration{r: new(big.Rat).Mul(d.rat(), half)}
}

// Ratio returns d/o. It panics when o is zero.
func (d Duration) Ratio(o Duration) *big.Rat {
	return new(big.Rat).Quo(d.rat(), o.rat())
}

// FloorDiv returns floor(d/o), saturated to the int64 range.
// It panics when o is zero.
func (d Duration) FloorDiv(o Duration) int64 {
	return floorSaturated(d.Ratio(o))
}

// Cmp compares d and o and returns -1, 0 or +1.
func (d Duration) Cmp(o Duration) int {
	return d.rat().Cmp(o.rat())
}

// Sign returns -1, 0 or +1.
func (d Duration) Sign() int {
	return d.rat().Sign()
}

// IsZero reports whether d is zero seconds.
func (d Duration) IsZero() bool {
	return d.Sign() == 0
}

// Equal reports whether d and o are exactly equal.
func (d Duration) Equal(o Duration) bool {
	return d.Cmp(o) == 0
}

// Float64 returns the nearest float64 number of seconds.
func (d Duration) Float64() float64 {
	f, _ := d.rat().Float64()
	return f
}

// Micros returns floor(d) in microseconds.
func (d Duration) Micros() int64 {
	return floorSaturated(new(big.Rat).Mul(d.rat(), microsPerSecond))
}

// Std returns the duration truncated to nanoseconds.
func (d Duration) Std() time.Duration {
	n := new(big.Rat).Mul(d.rat(), new(big.Rat).SetInt(nanosPerSecond))
	return time.Duration(floorSaturated(n))
}

// String returns "num/den s".
func (d Duration) String() string {
	return d.rat().RatString() + "s"
}

// MarshalText encodes the duration as an exact "num/den" rational.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.rat().RatString()), nil
}

// UnmarshalText decodes a "num/den" or decimal rational.
func (d *Duration) UnmarshalText(text []byte) error {
	r, ok := new(big.Rat).SetString(string(text))
	if !ok {
		return fmt.Errorf("timebase: invalid duration %q", text)
	}
	d.r = r

	return nil
}

// Time is an absolute instant: exact rational seconds since the Unix epoch.
type Time struct {
	r *big.Rat
}

// Unix returns the instant num/den seconds after the Unix epoch.
func Unix(num, den int64) Time {
	return Time{r: big.NewRat(num, den)}
}

// UnixMicro returns the instant us microseconds after the Unix epoch.
func UnixMicro(us int64) Time {
	return Time{r: big.NewRat(us, 1_000_000)}
}

// FromStd converts a time.Time with nanosecond precision.
func FromStd(t time.Time) Time {
	sec := new(big.Rat).SetInt64(t.Unix())
	frac := new(big.Rat).SetFrac(big.NewInt(int64(t.Nanosecond())), nanosPerSecond)

	return Time{r: sec.Add(sec, frac)}
}

func (t Time) rat() *big.Rat {
	if t.r == nil {
		return new(big.Rat)
	}

	return t.r
}

// Add returns t+d.
func (t Time) Add(d Duration) Time {
	return Time{r: new(big.Rat).Add(t.rat(), d.rat())}
}

// Sub returns t-o.
func (t Time) Sub(o Time) Duration {
	return Duration{r: new(big.Rat).Sub(t.rat(), o.rat())}
}

// Cmp compares t and o and returns -1, 0 or +1.
func (t Time) Cmp(o Time) int {
	return t.rat().Cmp(o.rat())
}

// Before reports whether t is strictly before o.
func (t Time) Before(o Time) bool { return t.Cmp(o) < 0 }

// After reports whether t is strictly after o.
func (t Time) After(o Time) bool { return t.Cmp(o) > 0 }

// Equal reports whether t and o are the same instant.
func (t Time) Equal(o Time) bool { return t.Cmp(o) == 0 }

// Seconds returns a copy of the rational seconds since the epoch.
func (t Time) Seconds() *big.Rat {
	return new(big.Rat).Set(t.rat())
}

// UnixMicro returns floor(t) in microseconds since the epoch.
func (t Time) UnixMicro() int64 {
	return floorSaturated(new(big.Rat).Mul(t.rat(), microsPerSecond))
}

// Std returns t truncated to nanoseconds, in UTC.
func (t Time) Std() time.Time {
	ns := new(big.Rat).Mul(t.rat(), new(big.Rat).SetInt(nanosPerSecond))
	n := floorInt(ns)
	sec, rem := new(big.Int).DivMod(n, nanosPerSecond, new(big.Int))

	return time.Unix(sec.Int64(), rem.Int64()).UTC()
}

// String formats t as RFC 3339 with nanoseconds.
func (t Time) String() string {
	return t.Std().Format(time.RFC3339Nano)
}

// MarshalText encodes the instant as exact "num/den" seconds since the epoch.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.rat().RatString()), nil
}

// UnmarshalText decodes a "num/den" or decimal rational.
func (t *Time) UnmarshalText(text []byte) error {
	r, ok := new(big.Rat).SetString(string(text))
	if !ok {
		return fmt.Errorf("timebase: invalid time %q", text)
	}
	t.r = r

	return nil
}

// floorInt returns floor(r). Rat denominators are always positive, so Euclidean
// division of the numerator is a floor.
func floorInt(r *big.Rat) *big.Int {
	return new(big.Int).Div(r.Num(), r.Denom())
}

func floorSaturated(r *big.Rat) int64 {
	q := floorInt(r)
	if q.IsInt64() {
		return q.Int64()
	}
	if q.Sign() < 0 {
		return math.MinInt64
	}

	return math.MaxInt64
}
