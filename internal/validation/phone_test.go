package validation

import "testing"

func TestIsValidPhoneNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "plain digits",
			number: "244923000111",
			valid:  true,
		},
		{
			name:   "with plus prefix",
			number: "+244923000111",
			valid:  true,
		},
		{
			name:   "plus in the middle",
			number: "244+923000111",
			valid:  false,
		},
		{
			name:   "contains letters",
			number: "24492300a111",
			valid:  false,
		},
		{
			name:   "too short",
			number: "12345",
			valid:  false,
		},
		{
			name:   "too long",
			number: "1234567890123456",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidPhoneNumber(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidPhoneNumber(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}
