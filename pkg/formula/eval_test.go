package formula

import (
	"testing"

	"github.com/fieldgrid/device-policy-engine/pkg/types"
)

// stubProvider is a fixed attribute scope for evaluator tests.
type stubProvider struct {
	current   map[string]types.Value
	inProcess map[string]types.Value
}

func (s *stubProvider) GetCurrentValue(name string) (types.Value, bool) {
	v, ok := s.current[name]
	return v, ok
}

func (s *stubProvider) GetInProcessValue(name string) (types.Value, bool) {
	v, ok := s.inProcess[name]
	return v, ok
}

func compute(t *testing.T, source string, provider ValueProvider) types.Value {
	t.Helper()
	f, err := New(source)
	if err != nil {
		t.Fatalf("New(%q) error: %v", source, err)
	}
	if provider == nil {
		provider = &stubProvider{}
	}
	return f.Compute(provider)
}

func checkValue(t *testing.T, source string, got, want types.Value) {
	t.Helper()
	if want.IsNaN() {
		if !got.IsNaN() {
			t.Errorf("Compute(%q) = %v, want NaN", source, got)
		}
		return
	}
	if !got.Equal(want) {
		t.Errorf("Compute(%q) = %v, want %v", source, got, want)
	}
}

func TestComputeArithmetic(t *testing.T) {
	tests := []struct {
		source string
		want   types.Value
	}{
		{"1 + 2", types.NewNumber(3)},
		{"10 - 3 - 2", types.NewNumber(5)},
		{"10 - 3 - 2 - 1", types.NewNumber(4)},
		{"2 + 3 * 4", types.NewNumber(14)},
		{"2 * 3 + 4", types.NewNumber(10)},
		{"1 - 2 * 3 - 4", types.NewNumber(-9)},
		{"(2 + 3) * 4", types.NewNumber(20)},
		{"1 + 2 * 3 + 4", types.NewNumber(11)},
		{"7 / 2", types.NewNumber(3.5)},
		{"10 % 3", types.NewNumber(1)},
		{"-5 + 3", types.NewNumber(-2)},
		{"+5 - 3", types.NewNumber(2)},
		{".5 * 4", types.NewNumber(2)},

		// Division by zero and missing operands degrade to NaN.
		{"10 / 0", types.NaN},
		{"$(missing) + 1", types.NaN},
		{"1 - $(missing)", types.NaN},
		{`"five" * 2`, types.NaN},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got := compute(t, tt.source, nil)
			checkValue(t, tt.source, got, tt.want)
		})
	}
}

func TestComputeStrings(t *testing.T) {
	tests := []struct {
		source string
		want   types.Value
	}{
		{`"foo" + "bar"`, types.NewString("foobar")},
		{`"foo" + 1`, types.NaN},
		{`UPPER("abc")`, types.NewString("ABC")},
		{`lower("ABC")`, types.NewString("abc")},
		{`UPPER(5)`, types.NewString("")},
		{`LOWER($(missing))`, types.NewString("")},
		{`UPPER("a" + "b")`, types.NewString("AB")},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got := compute(t, tt.source, nil)
			checkValue(t, tt.source, got, tt.want)
		})
	}
}

func TestComputeLogic(t *testing.T) {
	tests := []struct {
		source string
		want   types.Value
	}{
		{"1 && 1", types.NewBool(true)},
		{"1 && 0", types.NewBool(false)},
		{"0 || 2", types.NewBool(true)},
		{"0 || 0", types.NewBool(false)},
		{"NOT 1", types.NewBool(false)},
		{"NOT 0", types.NewBool(true)},
		{"NOT 2", types.NewBool(true)},
		{"NOT $(missing)", types.NewBool(true)},

		// NaN in a conjunction is false; a disjunction holds when the
		// other operand is defined.
		{"$(missing) && 1", types.NewBool(false)},
		{"1 && $(missing)", types.NewBool(false)},
		{"$(missing) || 1", types.NewBool(true)},
		{"$(missing) || 0", types.NewBool(true)},
		{"$(missing) || $(gone)", types.NewBool(false)},
		{"0 || $(missing)", types.NewBool(true)},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got := compute(t, tt.source, nil)
			checkValue(t, tt.source, got, tt.want)
		})
	}
}

func TestComputeComparisons(t *testing.T) {
	tests := []struct {
		source string
		want   types.Value
	}{
		{"2 > 1", types.NewBool(true)},
		{"1 > 2", types.NewBool(false)},
		{"2 >= 2", types.NewBool(true)},
		{"1 < 2", types.NewBool(true)},
		{"2 <= 1", types.NewBool(false)},
		{"1 + 2 == 3", types.NewBool(true)},
		{"1 != 2", types.NewBool(true)},

		// An unknown left operand never satisfies a comparison; an
		// unknown right operand is permissive.
		{"$(missing) > 1", types.NewBool(false)},
		{"1 > $(missing)", types.NewBool(true)},
		{"$(missing) >= $(gone)", types.NewBool(true)},
		{"$(missing) < 1", types.NewBool(false)},
		{"1 < $(missing)", types.NewBool(true)},
		{"$(missing) <= $(gone)", types.NewBool(true)},
		{"$(missing) == $(gone)", types.NewBool(false)},
		{"$(missing) != $(gone)", types.NewBool(true)},

		// Equality never crosses types.
		{`1 == "1"`, types.NewBool(false)},
		{`1 != "1"`, types.NewBool(true)},
		{`"eco" == "eco"`, types.NewBool(true)},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got := compute(t, tt.source, nil)
			checkValue(t, tt.source, got, tt.want)
		})
	}
}

func TestComputeLike(t *testing.T) {
	provider := &stubProvider{current: map[string]types.Value{
		"firmware": types.NewString("2.14.3"),
		"name":     types.NewString("pump_a"),
	}}

	tests := []struct {
		source string
		want   types.Value
	}{
		{`$(firmware) LIKE "2.%"`, types.NewBool(true)},
		{`$(firmware) LIKE "3.%"`, types.NewBool(false)},
		{`$(name) LIKE "pump__"`, types.NewBool(true)},
		{`$(name) LIKE "pump\_a"`, types.NewBool(true)},
		{`"pumpxa" LIKE "pump\_a"`, types.NewBool(false)},
		{`"a.c" LIKE "a.c"`, types.NewBool(true)},
		{`"abc" LIKE "a.c"`, types.NewBool(false)},
		{`"" LIKE "%"`, types.NewBool(true)},

		// Multi-byte literals match as whole characters.
		{`"Ωmega" LIKE "Ωmega"`, types.NewBool(true)},
		{`"ärger" LIKE "ä%"`, types.NewBool(true)},
		{`"Ω" LIKE "_"`, types.NewBool(true)},
		{`"ärger" LIKE "ö%"`, types.NewBool(false)},

		// Non-string operands never match.
		{`5 LIKE "5"`, types.NewBool(false)},
		{`$(missing) LIKE "%"`, types.NewBool(false)},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got := compute(t, tt.source, provider)
			checkValue(t, tt.source, got, tt.want)
		})
	}
}

func TestComputeTernary(t *testing.T) {
	fast := &stubProvider{current: map[string]types.Value{"speed": types.NewNumber(80)}}
	slow := &stubProvider{current: map[string]types.Value{"speed": types.NewNumber(30)}}

	tests := []struct {
		name     string
		source   string
		provider ValueProvider
		want     types.Value
	}{
		{"true branch", "$(speed) > 50 ? 1 : 0", fast, types.NewNumber(1)},
		{"false branch", "$(speed) > 50 ? 1 : 0", slow, types.NewNumber(0)},
		{"missing attribute takes false branch", "$(speed) > 50 ? 1 : 0", &stubProvider{}, types.NewNumber(0)},

		// Only the exact number 1 selects the true branch.
		{"condition two is not true", "2 ? 10 : 20", nil, types.NewNumber(20)},
		{"string condition is not true", `"1" ? 10 : 20`, nil, types.NewNumber(20)},
		{"branches may be strings", `$(speed) > 50 ? "fast" : "slow"`, fast, types.NewString("fast")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compute(t, tt.source, tt.provider)
			checkValue(t, tt.source, got, tt.want)
		})
	}
}

func TestComputeAttributeResolution(t *testing.T) {
	provider := &stubProvider{
		current: map[string]types.Value{
			"temp": types.NewNumber(20),
			"mode": types.NewString("eco"),
		},
		inProcess: map[string]types.Value{
			"temp": types.NewNumber(25),
		},
	}

	tests := []struct {
		name   string
		source string
		want   types.Value
	}{
		{"in-process wins", "$(temp)", types.NewNumber(25)},
		{"in-process falls back to current", "$(mode)", types.NewString("eco")},
		{"current ignores staged value", "$$(temp)", types.NewNumber(20)},
		{"missing is NaN", "$(absent)", types.NaN},
		{"missing current is NaN", "$$(absent)", types.NaN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compute(t, tt.source, provider)
			checkValue(t, tt.source, got, tt.want)
		})
	}
}

func TestComputeUnknownFunction(t *testing.T) {
	got := compute(t, "clamp(1, 2, 3)", nil)
	if !got.IsNaN() {
		t.Errorf("unknown function = %v, want NaN", got)
	}
}

func TestComputeIsPure(t *testing.T) {
	provider := &stubProvider{current: map[string]types.Value{"speed": types.NewNumber(80)}}
	f, err := New("$(speed) > 50 ? 1 : 0")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := f.Compute(provider); !got.Equal(types.NewNumber(1)) {
			t.Fatalf("run %d: got %v, want 1", i, got)
		}
	}
	if len(provider.current) != 1 || len(provider.inProcess) != 0 {
		t.Error("Compute mutated the provider")
	}
}
