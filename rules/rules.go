//go:build ruleguard

// Package gorules defines custom linter rules for the nightsound tree.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo flags the manual Add/Done pattern that sync.WaitGroup.Go
// replaces.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern").
		Suggest("$wg.Go(func() { $body })")
}

// TestingContext flags root contexts in tests; t.Context is cancelled when
// the test ends and lets goleak see stopped goroutines.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx := context.TODO()`,
		`$fn(context.Background(), $*args)`,
		`$fn(context.TODO(), $*args)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a root context")
}

// BenchmarkLoop flags b.N loops.
func BenchmarkLoop(m dsl.Matcher) {
	m.Match(
		`for range $b.N { $*body }`,
	).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... } instead of for range $b.N").
		Suggest("for $b.Loop() { $body }")
}

// TimeLayoutConstants flags magic layouts that have named constants.
func TimeLayoutConstants(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report(`use $t.Format(time.DateTime)`).
		Suggest(`$t.Format(time.DateTime)`)
	m.Match(`$t.Format("2006-01-02")`).
		Report(`use $t.Format(time.DateOnly)`).
		Suggest(`$t.Format(time.DateOnly)`)
	m.Match(`$t.Format("15:04:05")`).
		Report(`use $t.Format(time.TimeOnly)`).
		Suggest(`$t.Format(time.TimeOnly)`)
}

// StdErrorsInInternal flags the standard errors constructors inside
// internal packages, which build EnhancedErrors through internal/errors.
func StdErrorsInInternal(m dsl.Matcher) {
	m.Import("errors")
	m.Match(`errors.New($msg)`).
		Where(m.File().PkgPath.Matches(`/internal/`) &&
			!m.File().PkgPath.Matches(`/internal/errors$`) &&
			!m.File().Name.Matches(`_test\.go$`) &&
			m.File().Imports("errors")).
		Report("use internal/errors: errors.Newf($msg).Component(...).Category(...).Build() or errors.NewStd for sentinels")
}

// StdLogInInternal flags the standard log package; modules log through
// logger.Global().Module.
func StdLogInInternal(m dsl.Matcher) {
	m.Match(
		`log.Printf($*_)`,
		`log.Println($*_)`,
		`log.Print($*_)`,
		`log.Fatalf($*_)`,
	).
		Where(m.File().PkgPath.Matches(`/internal/`) && m.File().Imports("log")).
		Report("log through logger.Global().Module(...) instead of the standard log package")
}

// SampleBytesLoop flags hand-rolled little-endian sample decoding; the
// audiocore conversion helpers already do this.
func SampleBytesLoop(m dsl.Matcher) {
	m.Match(`int16($b[$i]) | int16($b[$j])<<8`).
		Report("use binary.LittleEndian.Uint16 or the audiocore conversion helpers to decode PCM16 samples")
}
