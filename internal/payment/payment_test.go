package payment

import "testing"

func TestAmountForTickets(t *testing.T) {
	tests := []struct {
		priceCents int64
		qty        int64
		want       string
	}{
		{500, 1, "5"},
		{500, 3, "15"},
		{199, 2, "3.98"},
		{1, 1, "0.01"},
		{250, 0, "0"},
	}

	for _, tt := range tests {
		got := AmountForTickets(tt.priceCents, tt.qty)
		if got.String() != tt.want {
			t.Errorf("AmountForTickets(%d, %d) = %s, want %s", tt.priceCents, tt.qty, got, tt.want)
		}
	}
}

func TestConfirmationAmount(t *testing.T) {
	c := Confirmation{AmountCents: 1998}
	if got := c.Amount().String(); got != "19.98" {
		t.Fatalf("Amount() = %s, want 19.98", got)
	}
}
