package user

import "testing"

func TestValidateUsername(t *testing.T) {
	valid := []string{"bob", "alice_99", "ABC", "user_name_with_underscores"}
	for _, name := range valid {
		if err := validateUsername(name); err != nil {
			t.Errorf("validateUsername(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "ab", "has space", "semi;colon", "dash-ed", "way@off"}
	for _, name := range invalid {
		if err := validateUsername(name); err == nil {
			t.Errorf("validateUsername(%q) = nil, want error", name)
		}
	}
}
