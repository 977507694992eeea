package types

import "testing"

func TestParseOrderStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want OrderStatus
	}{
		{"NEW", StatusNew},
		{"partially_filled", StatusPartiallyFilled},
		{"FILLED", StatusFilled},
		{"CANCELED", StatusCanceled},
		{"CANCELLED", StatusCanceled},
		{"REJECTED", StatusRejected},
		{"EXPIRED", StatusExpired},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			if got := ParseOrderStatus(tt.raw); got != tt.want {
				t.Errorf("ParseOrderStatus(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseOrderStatusUnknownPreservesRaw(t *testing.T) {
	t.Parallel()
	got := ParseOrderStatus("PENDING_CANCEL")
	if got.IsTerminal() {
		t.Errorf("unknown status should not be terminal")
	}
	if got.String() != "UNKNOWN(PENDING_CANCEL)" {
		t.Errorf("String() = %q, want UNKNOWN(PENDING_CANCEL)", got.String())
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{StatusNew, false},
		{StatusPartiallyFilled, false},
		{StatusFilled, true},
		{StatusCanceled, true},
		{StatusRejected, true},
		{StatusExpired, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%v.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestOrderStatusIsDeadWithoutFill(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{StatusFilled, false},
		{StatusCanceled, true},
		{StatusRejected, true},
		{StatusExpired, true},
		{StatusNew, false},
	}

	for _, tt := range tests {
		if got := tt.status.IsDeadWithoutFill(); got != tt.want {
			t.Errorf("%v.IsDeadWithoutFill() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSymbolSpecIsTradable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		spec   SymbolSpec
		wantOK bool
	}{
		{"trading and spot allowed", SymbolSpec{Status: "TRADING", SpotAllowed: true}, true},
		{"enabled lowercase", SymbolSpec{Status: "enabled", SpotAllowed: true}, true},
		{"active but not spot", SymbolSpec{Status: "ACTIVE", SpotAllowed: false}, false},
		{"halted", SymbolSpec{Status: "HALT", SpotAllowed: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.spec.IsTradable(); got != tt.wantOK {
				t.Errorf("IsTradable() = %v, want %v", got, tt.wantOK)
			}
		})
	}
}
