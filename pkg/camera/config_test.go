package camera

import "testing"

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantErrs int
	}{
		{"default", DefaultConfig(), 0},
		{"second device", Config{DeviceID: 1}, 0},
		{"negative device", Config{DeviceID: -1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if errs := tt.config.Validate(); len(errs) != tt.wantErrs {
				t.Errorf("Validate() = %v, want %d errors", errs, tt.wantErrs)
			}
		})
	}
}
