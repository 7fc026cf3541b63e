package domain

import "testing"

func TestFQANMatch(t *testing.T) {
	tests := []struct {
		name    string
		fqans   FQANs
		pattern string
		want    bool
	}{
		{
			name:    "role under vo matches wildcard",
			fqans:   FQANs{"/vo/Role=production"},
			pattern: "/vo/*",
			want:    true,
		},
		{
			name:    "other vo does not match",
			fqans:   FQANs{"/other/Role=NULL"},
			pattern: "/vo/*",
			want:    false,
		},
		{
			name:    "empty list never matches",
			fqans:   FQANs{},
			pattern: "*",
			want:    false,
		},
		{
			name:    "nil list never matches",
			fqans:   nil,
			pattern: "*",
			want:    false,
		},
		{
			name:    "wildcard crosses subgroup separators",
			fqans:   FQANs{"/atlas/higgs/Role=production"},
			pattern: "/atlas/*",
			want:    true,
		},
		{
			name:    "second entry matches",
			fqans:   FQANs{"/other/Role=NULL", "/vo/Role=pilot"},
			pattern: "/vo/Role=*",
			want:    true,
		},
		{
			name:    "question mark matches single character",
			fqans:   FQANs{"/vo1/Role=NULL"},
			pattern: "/vo?/Role=NULL",
			want:    true,
		},
		{
			name:    "bracket class",
			fqans:   FQANs{"/vo2/Role=NULL"},
			pattern: "/vo[12]/Role=NULL",
			want:    true,
		},
		{
			name:    "bracket class excludes",
			fqans:   FQANs{"/vo3/Role=NULL"},
			pattern: "/vo[12]/Role=NULL",
			want:    false,
		},
		{
			name:    "negated bracket class",
			fqans:   FQANs{"/vo3/Role=NULL"},
			pattern: "/vo[!12]/Role=NULL",
			want:    true,
		},
		{
			name:    "backslash is a literal character",
			fqans:   FQANs{`/vo/\x`},
			pattern: `/vo/\?`,
			want:    true,
		},
		{
			name:    "backslash does not escape the wildcard",
			fqans:   FQANs{`/vo/x`},
			pattern: `/vo/\*`,
			want:    false,
		},
		{
			name:    "case sensitive",
			fqans:   FQANs{"/VO/Role=production"},
			pattern: "/vo/*",
			want:    false,
		},
		{
			name:    "exact match without metacharacters",
			fqans:   FQANs{"/vo/Role=production"},
			pattern: "/vo/Role=production",
			want:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fqans.Match(tt.pattern)
			if err != nil {
				t.Fatalf("Match(%q): %v", tt.pattern, err)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestFQANMatchMalformedPattern(t *testing.T) {
	_, err := FQANs{"/vo/Role=production"}.Match("/vo/[z-a]")
	if err == nil {
		t.Fatal("Match with reversed bracket range succeeded, want error")
	}
}
