// Package validate is a chainable data-quality rule engine over
// in-memory tables. Checks record results instead of failing fast, so
// one pass surfaces every problem; AssertValid turns accumulated
// failures into a single combined error.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/shoplake/etl/pkg/errors"
	"github.com/shoplake/etl/pkg/table"
)

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+?[\d\s\-\(\)]{10,}$`)
)

// Result is the outcome of one rule.
type Result struct {
	Rule       string
	Passed     bool
	Message    string
	FailedRows int
	Timestamp  time.Time
}

// Summary condenses a full run.
type Summary struct {
	Dataset     string
	TotalRows   int
	TotalRules  int
	PassedRules int
	FailedRules int
	PassRate    float64
	FailedRows  int
}

// Engine evaluates rules against one dataset.
type Engine struct {
	tbl     *table.Table
	dataset string
	results []Result
}

func NewEngine(tbl *table.Table, dataset string) *Engine {
	return &Engine{tbl: tbl, dataset: dataset}
}

func (e *Engine) add(rule string, passed bool, message string, failedRows int) {
	e.results = append(e.results, Result{
		Rule:       rule,
		Passed:     passed,
		Message:    message,
		FailedRows: failedRows,
		Timestamp:  time.Now(),
	})
}

// missingColumn records a FAIL for rules aimed at absent columns. A
// schema drift should never silently pass.
func (e *Engine) missingColumn(rule, col string) {
	e.add(rule, false, fmt.Sprintf("column %q not found in dataset", col), 0)
}

// CheckNoNulls fails if any of the columns contains a null.
func (e *Engine) CheckNoNulls(cols ...string) *Engine {
	for _, col := range cols {
		rule := "no_nulls_" + col
		if !e.tbl.HasColumn(col) {
			e.missingColumn(rule, col)
			continue
		}
		nulls := 0
		for _, v := range e.tbl.Column(col) {
			if table.IsNull(v) {
				nulls++
			}
		}
		if nulls > 0 {
			e.add(rule, false, fmt.Sprintf("found %d null values in %q", nulls, col), nulls)
		} else {
			e.add(rule, true, fmt.Sprintf("no nulls in %q", col), 0)
		}
	}
	return e
}

// CheckCompleteness fails when the non-null share of a column falls
// below the threshold.
func (e *Engine) CheckCompleteness(threshold float64, cols ...string) *Engine {
	for _, col := range cols {
		rule := "completeness_" + col
		if !e.tbl.HasColumn(col) {
			e.missingColumn(rule, col)
			continue
		}
		if e.tbl.Len() == 0 {
			e.add(rule, true, "empty dataset", 0)
			continue
		}
		nonNull := 0
		for _, v := range e.tbl.Column(col) {
			if !table.IsNull(v) {
				nonNull++
			}
		}
		completeness := float64(nonNull) / float64(e.tbl.Len())
		passed := completeness >= threshold
		e.add(rule, passed,
			fmt.Sprintf("completeness %.2f%% (threshold %.2f%%)", completeness*100, threshold*100),
			e.tbl.Len()-nonNull)
	}
	return e
}

// CheckUnique fails on repeated values within each column.
func (e *Engine) CheckUnique(cols ...string) *Engine {
	for _, col := range cols {
		rule := "unique_" + col
		if !e.tbl.HasColumn(col) {
			e.missingColumn(rule, col)
			continue
		}
		seen := make(map[any]struct{}, e.tbl.Len())
		dups := 0
		for _, v := range e.tbl.Column(col) {
			k := table.Key(v)
			if _, ok := seen[k]; ok {
				dups++
				continue
			}
			seen[k] = struct{}{}
		}
		if dups > 0 {
			e.add(rule, false, fmt.Sprintf("found %d duplicates in %q", dups, col), dups)
		} else {
			e.add(rule, true, fmt.Sprintf("all values unique in %q", col), 0)
		}
	}
	return e
}

// CheckPrimaryKey fails when the column combination repeats.
func (e *Engine) CheckPrimaryKey(cols ...string) *Engine {
	rule := "primary_key_" + strings.Join(cols, "+")
	for _, col := range cols {
		if !e.tbl.HasColumn(col) {
			e.missingColumn(rule, col)
			return e
		}
	}
	seen := make(map[string]struct{}, e.tbl.Len())
	dups := 0
	for i := 0; i < e.tbl.Len(); i++ {
		vals := make([]any, len(cols))
		for j, col := range cols {
			vals[j] = e.tbl.Value(i, col)
		}
		k := table.CompositeKey(vals...)
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
	}
	if dups > 0 {
		e.add(rule, false, fmt.Sprintf("found %d duplicate keys", dups), dups)
	} else {
		e.add(rule, true, "primary key is valid", 0)
	}
	return e
}

// CheckValueRange fails on numeric values outside the optional bounds.
// Nulls and non-numeric cells are skipped.
func (e *Engine) CheckValueRange(col string, min, max *float64) *Engine {
	rule := "value_range_" + col
	if !e.tbl.HasColumn(col) {
		e.missingColumn(rule, col)
		return e
	}
	violations := 0
	for _, v := range e.tbl.Column(col) {
		f, ok := table.Float64(v)
		if !ok {
			continue
		}
		if min != nil && f < *min {
			violations++
		}
		if max != nil && f > *max {
			violations++
		}
	}
	bounds := fmt.Sprintf("[%s, %s]", formatBound(min), formatBound(max))
	if violations > 0 {
		e.add(rule, false, fmt.Sprintf("found %d values outside range %s", violations, bounds), violations)
	} else {
		e.add(rule, true, "all values in range "+bounds, 0)
	}
	return e
}

// CheckAllowedValues fails when the column holds values outside the
// allowed set, sampling up to five offenders for the message.
func (e *Engine) CheckAllowedValues(col string, allowed ...any) *Engine {
	rule := "allowed_values_" + col
	if !e.tbl.HasColumn(col) {
		e.missingColumn(rule, col)
		return e
	}
	allowedSet := make(map[any]struct{}, len(allowed))
	for _, v := range allowed {
		allowedSet[table.Key(v)] = struct{}{}
	}
	invalid := 0
	samples := make([]string, 0, 5)
	sampleSeen := make(map[string]struct{})
	for _, v := range e.tbl.Column(col) {
		if _, ok := allowedSet[table.Key(v)]; ok {
			continue
		}
		invalid++
		s := table.String(v)
		if _, dup := sampleSeen[s]; !dup && len(samples) < 5 {
			sampleSeen[s] = struct{}{}
			samples = append(samples, s)
		}
	}
	if invalid > 0 {
		e.add(rule, false,
			fmt.Sprintf("found %d invalid values (e.g. %s)", invalid, strings.Join(samples, ", ")),
			invalid)
	} else {
		e.add(rule, true, "all values in allowed list", 0)
	}
	return e
}

// CheckRegex fails on values that do not match the pattern. Nulls
// count as failures; absence is the domain of the null checks, but a
// null can never match a format.
func (e *Engine) CheckRegex(col string, re *regexp.Regexp, patternName string) *Engine {
	rule := "regex_" + col + "_" + patternName
	if !e.tbl.HasColumn(col) {
		e.missingColumn(rule, col)
		return e
	}
	invalid := 0
	for _, v := range e.tbl.Column(col) {
		if table.IsNull(v) || !re.MatchString(table.String(v)) {
			invalid++
		}
	}
	if invalid > 0 {
		e.add(rule, false, fmt.Sprintf("found %d values not matching %s", invalid, patternName), invalid)
	} else {
		e.add(rule, true, "all values match "+patternName, 0)
	}
	return e
}

func (e *Engine) CheckEmailFormat(col string) *Engine {
	return e.CheckRegex(col, emailRe, "email_format")
}

func (e *Engine) CheckPhoneFormat(col string) *Engine {
	return e.CheckRegex(col, phoneRe, "phone_format")
}

// CheckReferentialIntegrity fails on foreign keys absent from the
// reference table's key column.
func (e *Engine) CheckReferentialIntegrity(fkCol string, ref *table.Table, refCol string) *Engine {
	rule := "referential_integrity_" + fkCol
	if !e.tbl.HasColumn(fkCol) {
		e.missingColumn(rule, fkCol)
		return e
	}
	refKeys := make(map[any]struct{}, ref.Len())
	for _, v := range ref.Column(refCol) {
		refKeys[table.Key(v)] = struct{}{}
	}
	orphans := 0
	for _, v := range e.tbl.Column(fkCol) {
		if _, ok := refKeys[table.Key(v)]; !ok {
			orphans++
		}
	}
	if orphans > 0 {
		e.add(rule, false, fmt.Sprintf("found %d orphaned foreign keys", orphans), orphans)
	} else {
		e.add(rule, true, "all foreign keys valid", 0)
	}
	return e
}

// CheckDateOrder fails where the start date column sorts after the end
// date column. ISO date strings compare lexically.
func (e *Engine) CheckDateOrder(startCol, endCol string) *Engine {
	rule := "date_order_" + startCol + "_" + endCol
	if !e.tbl.HasColumn(startCol) {
		e.missingColumn(rule, startCol)
		return e
	}
	if !e.tbl.HasColumn(endCol) {
		e.missingColumn(rule, endCol)
		return e
	}
	violations := 0
	for i := 0; i < e.tbl.Len(); i++ {
		start, end := e.tbl.Value(i, startCol), e.tbl.Value(i, endCol)
		if table.IsNull(start) || table.IsNull(end) {
			continue
		}
		if table.String(start) > table.String(end) {
			violations++
		}
	}
	if violations > 0 {
		e.add(rule, false, fmt.Sprintf("found %d cases where start > end", violations), violations)
	} else {
		e.add(rule, true, "date order is valid", 0)
	}
	return e
}

// CheckLogical fails where the predicate does not hold for a row.
func (e *Engine) CheckLogical(name, description string, holds func(r table.Row) bool) *Engine {
	rule := "logical_" + name
	violations := 0
	for i := 0; i < e.tbl.Len(); i++ {
		if !holds(e.tbl.At(i)) {
			violations++
		}
	}
	if violations > 0 {
		e.add(rule, false, fmt.Sprintf("found %d violations of %q", violations, description), violations)
	} else {
		e.add(rule, true, fmt.Sprintf("rule %q satisfied", description), 0)
	}
	return e
}

// CheckOutliersIQR counts values beyond 1.5 IQR of the quartiles.
// Outliers are informational: the result always passes.
func (e *Engine) CheckOutliersIQR(col string) *Engine {
	rule := "outliers_" + col
	if !e.tbl.HasColumn(col) {
		e.missingColumn(rule, col)
		return e
	}
	vals := e.floats(col)
	outliers := 0
	if len(vals) > 0 {
		q1 := quantile(vals, 0.25)
		q3 := quantile(vals, 0.75)
		iqr := q3 - q1
		lower, upper := q1-1.5*iqr, q3+1.5*iqr
		for _, f := range vals {
			if f < lower || f > upper {
				outliers++
			}
		}
	}
	e.add(rule, true, fmt.Sprintf("found %d potential outliers", outliers), outliers)
	return e
}

// CheckOutliersZScore counts values with |z| above the threshold.
// Informational, always passes.
func (e *Engine) CheckOutliersZScore(col string, threshold float64) *Engine {
	rule := "outliers_" + col
	if !e.tbl.HasColumn(col) {
		e.missingColumn(rule, col)
		return e
	}
	vals := e.floats(col)
	outliers := 0
	if len(vals) > 1 {
		m := mean(vals)
		sd := stddev(vals, m)
		if sd > 0 {
			for _, f := range vals {
				if math.Abs(f-m)/sd > threshold {
					outliers++
				}
			}
		}
	}
	e.add(rule, true, fmt.Sprintf("found %d potential outliers", outliers), outliers)
	return e
}

// CheckDistribution fails when the column's mean or sample standard
// deviation drifts from the expectation by more than the tolerance,
// expressed as a relative fraction.
func (e *Engine) CheckDistribution(col string, expectedMean, expectedStd *float64, tolerance float64) *Engine {
	rule := "distribution_" + col
	if !e.tbl.HasColumn(col) {
		e.missingColumn(rule, col)
		return e
	}
	vals := e.floats(col)
	if len(vals) == 0 {
		e.add(rule, true, "no numeric values", 0)
		return e
	}
	m := mean(vals)
	sd := stddev(vals, m)

	passed := true
	var notes []string
	if expectedMean != nil && *expectedMean != 0 {
		diff := math.Abs(m-*expectedMean) / math.Abs(*expectedMean)
		if diff > tolerance {
			passed = false
			notes = append(notes, fmt.Sprintf("mean deviation %.2f%%", diff*100))
		}
	}
	if expectedStd != nil && *expectedStd != 0 {
		diff := math.Abs(sd-*expectedStd) / math.Abs(*expectedStd)
		if diff > tolerance {
			passed = false
			notes = append(notes, fmt.Sprintf("std deviation %.2f%%", diff*100))
		}
	}
	msg := "distribution within tolerance"
	if len(notes) > 0 {
		msg = strings.Join(notes, ", ")
	}
	e.add(rule, passed, msg, 0)
	return e
}

// Results returns every recorded result in rule order.
func (e *Engine) Results() []Result {
	return append([]Result(nil), e.results...)
}

// Failed returns only the failing results.
func (e *Engine) Failed() []Result {
	var out []Result
	for _, r := range e.results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// Summarize condenses the run.
func (e *Engine) Summarize() Summary {
	s := Summary{
		Dataset:    e.dataset,
		TotalRows:  e.tbl.Len(),
		TotalRules: len(e.results),
	}
	for _, r := range e.results {
		if r.Passed {
			s.PassedRules++
		} else {
			s.FailedRules++
		}
		s.FailedRows += r.FailedRows
	}
	if s.TotalRules > 0 {
		s.PassRate = float64(s.PassedRules) / float64(s.TotalRules)
	}
	return s
}

// Report renders the results as a table, one row per rule.
func (e *Engine) Report() *table.Table {
	out := table.New("rule", "passed", "failed_rows", "message")
	for _, r := range e.results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		_ = out.Append([]any{r.Rule, status, int64(r.FailedRows), r.Message})
	}
	return out
}

// AssertValid combines every failing rule into one validation error,
// nil when everything passed.
func (e *Engine) AssertValid() error {
	var errs error
	for _, r := range e.results {
		if r.Passed {
			continue
		}
		errs = multierr.Append(errs,
			errors.New(errors.CodeValidation, e.dataset+": "+r.Rule+": "+r.Message))
	}
	return errs
}

func (e *Engine) floats(col string) []float64 {
	out := make([]float64, 0, e.tbl.Len())
	for _, v := range e.tbl.Column(col) {
		if f, ok := table.Float64(v); ok {
			out = append(out, f)
		}
	}
	return out
}

func formatBound(b *float64) string {
	if b == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *b)
}

// quantile uses linear interpolation between closest ranks.
func quantile(vals []float64, q float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func mean(vals []float64) float64 {
	sum := 0.0
	for _, f := range vals {
		sum += f
	}
	return sum / float64(len(vals))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(vals []float64, m float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	sum := 0.0
	for _, f := range vals {
		d := f - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

// Float is a shorthand for optional bounds.
func Float(f float64) *float64 {
	return &f
}
