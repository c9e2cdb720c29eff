package mpesa

import "testing"

func TestFormatPhoneNumber(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "local format", input: "0712345678", want: "254712345678"},
		{name: "international format", input: "254712345678", want: "254712345678"},
		{name: "bare subscriber number", input: "712345678", want: "254712345678"},
		{name: "spaces and dashes stripped", input: "0712 345-678", want: "254712345678"},
		{name: "plus prefix stripped", input: "+254712345678", want: "254712345678"},
		{name: "too short", input: "07123", wantErr: true},
		{name: "too long", input: "2547123456789", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "letters only", input: "not-a-phone", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatPhoneNumber(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
