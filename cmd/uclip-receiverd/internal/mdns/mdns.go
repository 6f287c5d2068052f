// Package mdns advertises the receiver daemon as _uclip._tcp.local. on the
// local network. This is ambient wiring for a runnable binary: the core
// module treats mDNS as an external collaborator and never imports it.
package mdns

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
	"github.com/rs/zerolog/log"
)

const (
	mdnsAddr    = "224.0.0.251:5353"
	serviceType = "_uclip._tcp.local."
	ttlSeconds  = 120
)

// Advertiser answers mDNS queries for the receiver's service instance.
type Advertiser struct {
	conn     *net.UDPConn
	instance string // e.g. "My Laptop._uclip._tcp.local."
	hostname string // e.g. "My-Laptop.local."
	port     int
}

// NewAdvertiser binds the mDNS multicast socket and prepares the records
// for deviceName. hostname replaces spaces with hyphens per §6.
func NewAdvertiser(deviceName string, port int) (*Advertiser, error) {
	group, err := net.ResolveUDPAddr("udp4", mdnsAddr)
	if err != nil {
		return nil, fmt.Errorf("mdns: resolve multicast group: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("mdns: join multicast group: %w", err)
	}

	hostname := strings.ReplaceAll(deviceName, " ", "-") + ".local."
	instance := deviceName + "." + serviceType

	return &Advertiser{conn: conn, instance: instance, hostname: hostname, port: port}, nil
}

// Serve answers incoming queries until ctx is cancelled.
func (a *Advertiser) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		a.conn.Close()
	}()

	buf := make([]byte, 65536)
	for {
		n, src, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("[mdns] read")
			continue
		}

		var query dns.Msg
		if err := query.Unpack(buf[:n]); err != nil {
			continue
		}
		if !a.queryMatches(&query) {
			continue
		}

		resp := a.buildResponse(&query)
		packed, err := resp.Pack()
		if err != nil {
			log.Warn().Err(err).Msg("[mdns] pack response")
			continue
		}
		if _, err := a.conn.WriteToUDP(packed, src); err != nil {
			log.Warn().Err(err).Msg("[mdns] write response")
		}
	}
}

func (a *Advertiser) queryMatches(query *dns.Msg) bool {
	for _, q := range query.Question {
		if strings.EqualFold(q.Name, serviceType) || strings.EqualFold(q.Name, a.instance) {
			return true
		}
	}
	return false
}

func (a *Advertiser) buildResponse(query *dns.Msg) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetReply(query)
	resp.Authoritative = true

	ptr := &dns.PTR{
		Hdr: dns.RR_Header{Name: serviceType, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: ttlSeconds},
		Ptr: a.instance,
	}
	srv := &dns.SRV{
		Hdr:      dns.RR_Header{Name: a.instance, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: ttlSeconds},
		Priority: 0,
		Weight:   0,
		Port:     uint16(a.port),
		Target:   a.hostname,
	}
	txt := &dns.TXT{
		Hdr: dns.RR_Header{Name: a.instance, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: ttlSeconds},
		Txt: []string{""},
	}

	resp.Answer = append(resp.Answer, ptr, srv, txt)
	return resp
}

// Close releases the multicast socket.
func (a *Advertiser) Close() error {
	return a.conn.Close()
}
