package domain

import "testing"

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		wantErr   bool
		wantEmail string
	}{
		{"normalizes", "  Alice@Example.COM ", false, "alice@example.com"},
		{"empty", "   ", true, ""},
		{"no at sign", "alice.example.com", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Email: tt.email}
			err := u.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if u.Email != tt.wantEmail {
					t.Errorf("email = %q, want %q", u.Email, tt.wantEmail)
				}
				if u.Status != UserStatusActive {
					t.Errorf("status = %q, want active", u.Status)
				}
			}
		})
	}
}
