package registry

import "testing"

func TestRemoveDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Léa", "Lea"},
		{"Éloïse", "Eloise"},
		{"François", "Francois"},
		{"Noël", "Noel"},
		{"hello", "hello"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := RemoveDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("RemoveDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jean-Baptiste Lefèvre", "jean baptiste lefevre"},
		{"  ZOÉ   Martin ", "zoe martin"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	students := []Student{
		{StudentID: "E001", FirstName: "Léa", LastName: "Dubois"},
		{StudentID: "E002", FirstName: "Hugo", LastName: "Lefèvre"},
		{StudentID: "X100", FirstName: "Chloé", LastName: "Durand"},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty query", "", []string{"E001", "E002", "X100"}},
		{"accent insensitive", "lea", []string{"E001"}},
		{"last name first", "lefevre hugo", []string{"E002"}},
		{"id prefix", "e00", []string{"E001", "E002"}},
		{"shared prefix", "du", []string{"E001", "X100"}},
		{"no match", "zzz", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter(students, tc.query)
			if len(got) != len(tc.want) {
				t.Fatalf("Filter(%q) returned %d students, want %d", tc.query, len(got), len(tc.want))
			}
			for i, id := range tc.want {
				if got[i].StudentID != id {
					t.Errorf("Filter(%q)[%d] = %s, want %s", tc.query, i, got[i].StudentID, id)
				}
			}
		})
	}
}
