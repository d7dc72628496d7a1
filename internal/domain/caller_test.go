package domain

import (
	"context"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "+39 333 123-4567", want: "+393331234567", ok: true},
		{in: "(02) 555.1234", want: "025551234", ok: true},
		{in: "12345", want: "12345", ok: false},
		{in: "chiamami", want: "chiamami", ok: false},
	}
	for _, tt := range tests {
		got, ok := NormalizePhone(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("NormalizePhone(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCallerPhoneContext(t *testing.T) {
	if got := CallerPhone(context.Background()); got != "" {
		t.Fatalf("empty context phone = %q", got)
	}
	ctx := WithCallerPhone(context.Background(), "+393331234567")
	if got := CallerPhone(ctx); got != "+393331234567" {
		t.Fatalf("phone = %q", got)
	}
}
