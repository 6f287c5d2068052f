package mdns

import (
	"testing"

	"github.com/miekg/dns"
)

func TestBuildResponseAnswersMatchingQuery(t *testing.T) {
	a := &Advertiser{
		instance: "My Laptop._uclip._tcp.local.",
		hostname: "My-Laptop.local.",
		port:     9876,
	}

	query := new(dns.Msg)
	query.SetQuestion(serviceType, dns.TypePTR)

	resp := a.buildResponse(query)
	if len(resp.Answer) != 3 {
		t.Fatalf("expected 3 answer records, got %d", len(resp.Answer))
	}

	var sawPTR, sawSRV, sawTXT bool
	for _, rr := range resp.Answer {
		switch rec := rr.(type) {
		case *dns.PTR:
			sawPTR = true
			if rec.Ptr != a.instance {
				t.Errorf("PTR target = %q, want %q", rec.Ptr, a.instance)
			}
		case *dns.SRV:
			sawSRV = true
			if rec.Port != uint16(a.port) {
				t.Errorf("SRV port = %d, want %d", rec.Port, a.port)
			}
			if rec.Target != a.hostname {
				t.Errorf("SRV target = %q, want %q", rec.Target, a.hostname)
			}
		case *dns.TXT:
			sawTXT = true
		}
	}
	if !sawPTR || !sawSRV || !sawTXT {
		t.Fatalf("missing expected record types: ptr=%v srv=%v txt=%v", sawPTR, sawSRV, sawTXT)
	}
}

func TestQueryMatchesServiceOrInstanceName(t *testing.T) {
	a := &Advertiser{instance: "My Laptop._uclip._tcp.local.", hostname: "My-Laptop.local.", port: 9876}

	serviceQuery := new(dns.Msg)
	serviceQuery.SetQuestion(serviceType, dns.TypePTR)
	if !a.queryMatches(serviceQuery) {
		t.Error("expected query for service type to match")
	}

	instanceQuery := new(dns.Msg)
	instanceQuery.SetQuestion(a.instance, dns.TypeSRV)
	if !a.queryMatches(instanceQuery) {
		t.Error("expected query for instance name to match")
	}

	unrelated := new(dns.Msg)
	unrelated.SetQuestion("_ssh._tcp.local.", dns.TypePTR)
	if a.queryMatches(unrelated) {
		t.Error("expected unrelated query not to match")
	}
}

func TestNewAdvertiserHostnameReplacesSpaces(t *testing.T) {
	a, err := NewAdvertiser("My Laptop", 9876)
	if err != nil {
		t.Skipf("multicast join unavailable in this environment: %v", err)
	}
	defer a.Close()

	if a.hostname != "My-Laptop.local." {
		t.Errorf("hostname = %q, want %q", a.hostname, "My-Laptop.local.")
	}
	if a.instance != "My Laptop._uclip._tcp.local." {
		t.Errorf("instance = %q, want %q", a.instance, "My Laptop._uclip._tcp.local.")
	}
}
