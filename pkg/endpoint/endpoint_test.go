package endpoint

import (
	"strings"
	"testing"

	"github.com/miekg/dns"
)

func TestFqdn(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"host1.example.com", "host1.example.com."},
		{"host1.example.com.", "host1.example.com."},
		{"host1.example.com..", "host1.example.com."},
		{"", ""},
		{".", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Fqdn(tt.in); got != tt.want {
				t.Errorf("Fqdn(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSameName(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"host1.example.com.", "host1.example.com", true},
		{"host1.example.com", "host1.example.com", true},
		{"host1.example.com.", "host1.example.com.foo.", false},
		{"host1.example.com.", "host10.example.com.", false},
		{"host1.example.com.", "host1.example.co.", false},
		{"Host1.Example.COM.", "host1.example.com.", true},
		{"Host1.Example.com", "host10.example.com.", false},
	}
	for _, tt := range tests {
		if got := SameName(tt.a, tt.b); got != tt.want {
			t.Errorf("SameName(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"host1.example.com.", true},
		{"host1.example.com", true},
		{"", false},
		{"..", false},
		{strings.Repeat("a", 64) + ".example.com.", false},
	}
	for _, tt := range tests {
		if got := IsValidName(tt.name); got != tt.want {
			t.Errorf("IsValidName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("basic A record", func(t *testing.T) {
		ep := New("web.example.com.", []string{"203.0.113.10"}, RecordTypeA, 5, nil)
		if ep.DNSName != "web.example.com." {
			t.Errorf("DNSName = %q, want %q", ep.DNSName, "web.example.com.")
		}
		if len(ep.Targets) != 1 || ep.Targets[0] != "203.0.113.10" {
			t.Errorf("Targets = %v, want [203.0.113.10]", ep.Targets)
		}
		if ep.TTL != 5 {
			t.Errorf("TTL = %d, want 5", ep.TTL)
		}
	})

	t.Run("nil labels initialised to empty map", func(t *testing.T) {
		ep := New("a.example.com.", []string{"1.2.3.4"}, RecordTypeA, 5, nil)
		if ep.Labels == nil {
			t.Error("Labels should not be nil")
		}
		if ep.IsAlias() {
			t.Error("IsAlias() = true for a plain record")
		}
	})

	t.Run("alias label", func(t *testing.T) {
		ep := New("a.example.com.", nil, RecordTypeA, 0, map[string]string{
			LabelAliasDNSName: "lb-123.eu-west-1.elb.amazonaws.com.",
		})
		if !ep.IsAlias() {
			t.Error("IsAlias() = false, want true")
		}
	})
}

func TestString(t *testing.T) {
	ep := New("app.example.com.", []string{"10.0.0.1", "10.0.0.2"}, RecordTypeA, 5, nil)
	want := "app.example.com. A 10.0.0.1,10.0.0.2 (TTL 5)"
	if got := ep.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestRRs(t *testing.T) {
	ep := New("app.example.com", []string{"10.0.0.1"}, RecordTypeA, 5, nil)
	rrs, err := ep.RRs()
	if err != nil {
		t.Fatalf("RRs() error = %v", err)
	}
	if len(rrs) != 1 {
		t.Fatalf("got %d RRs, want 1", len(rrs))
	}
	a, ok := rrs[0].(*dns.A)
	if !ok {
		t.Fatalf("RR type = %T, want *dns.A", rrs[0])
	}
	if a.Hdr.Name != "app.example.com." {
		t.Errorf("Name = %q, want app.example.com.", a.Hdr.Name)
	}
	if a.Hdr.Ttl != 5 {
		t.Errorf("Ttl = %d, want 5", a.Hdr.Ttl)
	}
	if a.A.String() != "10.0.0.1" {
		t.Errorf("A = %s, want 10.0.0.1", a.A)
	}
}

func TestRRs_InvalidTarget(t *testing.T) {
	ep := New("app.example.com.", []string{"not-an-ip"}, RecordTypeA, 5, nil)
	if _, err := ep.RRs(); err == nil {
		t.Error("expected error for invalid IPv4 target")
	}
}

func TestRRs_UnsupportedType(t *testing.T) {
	ep := New("app.example.com.", []string{"target.example.com."}, "CNAME", 5, nil)
	if _, err := ep.RRs(); err == nil {
		t.Error("expected error for unsupported record type")
	}
}
