package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplake/etl/pkg/table"
)

func fixture(t *testing.T) *table.Table {
	t.Helper()
	tbl := table.New("customer_id", "name", "email", "age", "status", "signup_date", "last_login")
	rows := [][]any{
		{int64(1), "John", "john@test.com", 25.0, "active", "2024-01-01", "2024-01-15"},
		{int64(2), "Jane", "invalid-email", 30.0, "active", "2024-02-01", "2024-02-15"},
		{int64(3), nil, "jane@test.com", 35.0, "inactive", "2024-03-01", "2024-03-15"},
		{int64(4), "Bob", "bob@test.com", -5.0, "invalid", "2024-04-01", "2024-03-01"},
		{int64(5), "Alice", "alice@test.com", 200.0, "active", "2024-05-01", "2024-05-15"},
		{int64(5), "Charlie", "charlie@test.com", 40.0, "active", "2024-06-01", "2024-06-15"},
	}
	for _, r := range rows {
		require.NoError(t, tbl.Append(r))
	}
	return tbl
}

func resultByRule(t *testing.T, e *Engine, rule string) Result {
	t.Helper()
	for _, r := range e.Results() {
		if r.Rule == rule {
			return r
		}
	}
	t.Fatalf("rule %q not found", rule)
	return Result{}
}

func TestCheckNoNulls(t *testing.T) {
	e := NewEngine(fixture(t), "customers").CheckNoNulls("customer_id", "name")

	assert.True(t, resultByRule(t, e, "no_nulls_customer_id").Passed)

	r := resultByRule(t, e, "no_nulls_name")
	assert.False(t, r.Passed)
	assert.Equal(t, 1, r.FailedRows)
}

func TestMissingColumnFails(t *testing.T) {
	e := NewEngine(fixture(t), "customers").
		CheckNoNulls("ghost").
		CheckCompleteness(0.95, "ghost").
		CheckUnique("ghost").
		CheckValueRange("ghost", nil, nil)

	for _, r := range e.Results() {
		assert.False(t, r.Passed, r.Rule)
		assert.Contains(t, r.Message, "not found")
	}
}

func TestCheckCompleteness(t *testing.T) {
	e := NewEngine(fixture(t), "customers").
		CheckCompleteness(0.95, "name").
		CheckCompleteness(0.80, "name")

	results := e.Results()
	assert.False(t, results[0].Passed) // 5/6 is below 95%
	assert.True(t, results[1].Passed)
}

func TestCheckUniqueAndPrimaryKey(t *testing.T) {
	e := NewEngine(fixture(t), "customers").
		CheckUnique("customer_id", "email").
		CheckPrimaryKey("customer_id")

	r := resultByRule(t, e, "unique_customer_id")
	assert.False(t, r.Passed)
	assert.Equal(t, 1, r.FailedRows)

	assert.True(t, resultByRule(t, e, "unique_email").Passed)
	assert.False(t, resultByRule(t, e, "primary_key_customer_id").Passed)
}

func TestCheckValueRange(t *testing.T) {
	e := NewEngine(fixture(t), "customers").
		CheckValueRange("age", Float(0), Float(120)).
		CheckValueRange("age", Float(-100), nil)

	r := resultByRule(t, e, "value_range_age")
	assert.False(t, r.Passed)
	assert.Equal(t, 2, r.FailedRows) // -5 and 200

	assert.True(t, e.Results()[1].Passed)
}

func TestCheckAllowedValues(t *testing.T) {
	e := NewEngine(fixture(t), "customers").
		CheckAllowedValues("status", "active", "inactive", "suspended")

	r := resultByRule(t, e, "allowed_values_status")
	assert.False(t, r.Passed)
	assert.Equal(t, 1, r.FailedRows)
	assert.Contains(t, r.Message, "invalid")
}

func TestCheckEmailFormat(t *testing.T) {
	e := NewEngine(fixture(t), "customers").CheckEmailFormat("email")

	r := resultByRule(t, e, "regex_email_email_format")
	assert.False(t, r.Passed)
	assert.Equal(t, 1, r.FailedRows)
}

func TestCheckReferentialIntegrity(t *testing.T) {
	ref := table.New("customer_id")
	for _, id := range []int64{1, 2, 3, 4} {
		require.NoError(t, ref.Append([]any{id}))
	}

	e := NewEngine(fixture(t), "orders").CheckReferentialIntegrity("customer_id", ref, "customer_id")

	r := resultByRule(t, e, "referential_integrity_customer_id")
	assert.False(t, r.Passed)
	assert.Equal(t, 2, r.FailedRows) // both id 5 rows
}

func TestCheckDateOrder(t *testing.T) {
	e := NewEngine(fixture(t), "customers").CheckDateOrder("signup_date", "last_login")

	r := resultByRule(t, e, "date_order_signup_date_last_login")
	assert.False(t, r.Passed)
	assert.Equal(t, 1, r.FailedRows) // bob logged in before signing up
}

func TestCheckLogical(t *testing.T) {
	e := NewEngine(fixture(t), "customers").
		CheckLogical("adult", "age is non negative", func(r table.Row) bool {
			age, ok := table.Float64(r.Get("age"))
			return ok && age >= 0
		})

	r := resultByRule(t, e, "logical_adult")
	assert.False(t, r.Passed)
	assert.Equal(t, 1, r.FailedRows)
}

func TestOutliersAlwaysPass(t *testing.T) {
	e := NewEngine(fixture(t), "customers").CheckOutliersIQR("age")
	r := resultByRule(t, e, "outliers_age")
	assert.True(t, r.Passed)
	assert.Positive(t, r.FailedRows) // 200 sticks out

	e2 := NewEngine(fixture(t), "customers").CheckOutliersZScore("age", 3.0)
	assert.True(t, e2.Results()[0].Passed)
}

func TestCheckDistribution(t *testing.T) {
	tbl := table.New("v")
	for _, f := range []float64{10, 10, 10, 10} {
		require.NoError(t, tbl.Append([]any{f}))
	}

	pass := NewEngine(tbl, "d").CheckDistribution("v", Float(10), nil, 0.1)
	assert.True(t, pass.Results()[0].Passed)

	fail := NewEngine(tbl, "d").CheckDistribution("v", Float(20), nil, 0.1)
	assert.False(t, fail.Results()[0].Passed)
}

func TestSummarizeAndAssertValid(t *testing.T) {
	e := NewEngine(fixture(t), "customers").
		CheckNoNulls("customer_id").
		CheckUnique("customer_id").
		CheckEmailFormat("email")

	s := e.Summarize()
	assert.Equal(t, "customers", s.Dataset)
	assert.Equal(t, 6, s.TotalRows)
	assert.Equal(t, 3, s.TotalRules)
	assert.Equal(t, 1, s.PassedRules)
	assert.Equal(t, 2, s.FailedRules)
	assert.InDelta(t, 1.0/3.0, s.PassRate, 0.001)

	err := e.AssertValid()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unique_customer_id")
	assert.Contains(t, err.Error(), "email_format")

	clean := NewEngine(fixture(t), "customers").CheckNoNulls("customer_id")
	assert.NoError(t, clean.AssertValid())
}

func TestQuantileInterpolation(t *testing.T) {
	vals := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, quantile(vals, 0.25), 0.001)
	assert.InDelta(t, 3.25, quantile(vals, 0.75), 0.001)
	assert.InDelta(t, 2.5, quantile(vals, 0.5), 0.001)
}

func TestStddevIsSampleBased(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	m := mean(vals)
	assert.InDelta(t, 5.0, m, 0.001)
	assert.InDelta(t, 2.138, stddev(vals, m), 0.001)
}

func TestReportRendersOneRowPerRule(t *testing.T) {
	e := NewEngine(fixture(t), "customers").
		CheckNoNulls("customer_id").
		CheckUnique("customer_id")

	rep := e.Report()
	assert.Equal(t, []string{"rule", "passed", "failed_rows", "message"}, rep.Columns())
	assert.Equal(t, len(e.Results()), rep.Len())
	assert.Equal(t, "PASS", rep.Value(0, "passed"))
	assert.Equal(t, "FAIL", rep.Value(1, "passed"))
}
