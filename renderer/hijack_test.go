package renderer

import "testing"

func TestIsAdDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"pagead2.googlesyndication.com", true},
		{"stats.g.doubleclick.net", true},
		{"DOUBLECLICK.NET", true},
		{"example.com", false},
		{"notdoubleclick.net.example.org", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			if got := isAdDomain(tt.host); got != tt.want {
				t.Errorf("isAdDomain(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}
