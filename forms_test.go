package cusipmap

import (
	"testing"
)

func TestNormalizeFormType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"13D", "SC 13D"},
		{"13g/a", "SC 13G/A"},
		{"SCHEDULE 13D", "SC 13D"},
		{"Schedule  13G/A", "SC 13G/A"},
		{"sc 13d", "SC 13D"},
		{"4", "4"},
		{" 10-K ", "10-K"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeFormType(tt.input); got != tt.want {
				t.Errorf("NormalizeFormType(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMatchesFormType(t *testing.T) {
	tests := []struct {
		filing    string
		requested string
		want      bool
	}{
		{"SC 13D", "13D", true},
		{"SC 13D/A", "13D", true},
		{"SC 13G", "13D", false},
		{"SC 13G/A", "13G", true},
		{"SC 13D", "13", true},
		{"SC 13G/A", "13", true},
		{"4", "13", false},
		{"SC 13D", "SC 13D/A", false},
		{"SC 13D/A", "SC 13D/A", true},
		{"4", "4", true},
		{"4/A", "4", false},
	}

	for _, tt := range tests {
		t.Run(tt.filing+"_"+tt.requested, func(t *testing.T) {
			if got := MatchesFormType(tt.filing, tt.requested); got != tt.want {
				t.Errorf("MatchesFormType(%q, %q) = %v, want %v", tt.filing, tt.requested, got, tt.want)
			}
		})
	}
}

func TestMatchesAnyForm(t *testing.T) {
	if !MatchesAnyForm("SC 13G", nil) {
		t.Error("empty request list should match every form")
	}
	if !MatchesAnyForm("SC 13G/A", []string{"13D", "13G"}) {
		t.Error("expected SC 13G/A to match 13G")
	}
	if MatchesAnyForm("10-K", []string{"13D", "13G"}) {
		t.Error("expected 10-K not to match Schedule 13 forms")
	}
}

func TestIsAmendedForm(t *testing.T) {
	for form, want := range map[string]bool{
		"SC 13D/A": true,
		"sc 13g/a": true,
		"SC 13D":   false,
		"SC 13G":   false,
		"":         false,
	} {
		if got := IsAmendedForm(form); got != want {
			t.Errorf("IsAmendedForm(%q) = %v, want %v", form, got, want)
		}
	}
}

func TestExtractAmendmentInfo(t *testing.T) {
	tests := []struct {
		formType      string
		wantAmendment bool
		wantNumber    *int
	}{
		{"SC 13D", false, nil},
		{"SCHEDULE 13D", false, nil},
		{"SC 13D/A", true, nil},
		{"SC 13D/A 2", true, ptrInt(2)},
		{"SC 13D/A#3", true, ptrInt(3)},
		{"SCHEDULE 13D/A Amendment No. 5", true, ptrInt(5)},
		{"sc 13d/a amendment no. 7", true, ptrInt(7)},
		{"SC 13G", false, nil},
		{"SC 13G/A", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.formType, func(t *testing.T) {
			gotAmendment, gotNumber := ExtractAmendmentInfo(tt.formType)

			if gotAmendment != tt.wantAmendment {
				t.Errorf("IsAmendment: got %v, want %v", gotAmendment, tt.wantAmendment)
			}

			if (gotNumber == nil) != (tt.wantNumber == nil) {
				t.Errorf("AmendmentNumber: got %v, want %v", gotNumber, tt.wantNumber)
			} else if gotNumber != nil && tt.wantNumber != nil && *gotNumber != *tt.wantNumber {
				t.Errorf("AmendmentNumber: got %d, want %d", *gotNumber, *tt.wantNumber)
			}
		})
	}
}

func TestActivistAndPassiveForms(t *testing.T) {
	if !IsActivistForm("13D/A") || IsActivistForm("SC 13G") {
		t.Error("IsActivistForm misclassified a form")
	}
	if !IsPassiveForm("schedule 13g") || IsPassiveForm("SC 13D") {
		t.Error("IsPassiveForm misclassified a form")
	}
}

func ptrInt(i int) *int {
	return &i
}
