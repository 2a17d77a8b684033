package domain

import "testing"

func TestParseHardwareType_CaseInsensitive(t *testing.T) {
	cases := map[string]HardwareType{
		"heating": HardwareHeating,
		"Heating": HardwareHeating,
		"HEATING": HardwareHeating,
		"heAting": HardwareHeating,
		"cooling": HardwareCooling,
		"Cooling": HardwareCooling,
		"COOLING": HardwareCooling,
		"coOLing": HardwareCooling,
	}
	for input, want := range cases {
		got, err := ParseHardwareType(input)
		if err != nil {
			t.Errorf("ParseHardwareType(%q): unexpected error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseHardwareType(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseHardwareType_Unknown(t *testing.T) {
	if _, err := ParseHardwareType("frobnicator"); err == nil {
		t.Fatal("ParseHardwareType(\"frobnicator\"): expected error, got nil")
	}
}
