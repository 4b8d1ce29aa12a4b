package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gnet "github.com/shirou/gopsutil/v4/net"

	"ipinfo-probe/collectors"
	"ipinfo-probe/core/internal/config"
	"ipinfo-probe/core/internal/report"
)

func hostInterfaces(list ...gnet.InterfaceStat) func(context.Context) (gnet.InterfaceStatList, error) {
	return func(context.Context) (gnet.InterfaceStatList, error) { return list, nil }
}

func noConnections(context.Context, string) ([]gnet.ConnectionStat, error) { return nil, nil }

func stat(name, mac string, addrs ...string) gnet.InterfaceStat {
	s := gnet.InterfaceStat{Name: name, HardwareAddr: mac}
	for _, a := range addrs {
		s.Addrs = append(s.Addrs, gnet.InterfaceAddr{Addr: a})
	}
	return s
}

func wanStub(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, cfg *config.Config, src Sources) Result {
	t.Helper()
	res, err := Run(context.Background(), Options{
		RunID:      "test-run",
		Collectors: NewCollectors(cfg, src),
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return res
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.WAN.URL = wanStub(t, http.StatusOK, "198.51.100.9")
	cfg.WAN.Timeout = time.Second

	res := run(t, cfg, Sources{
		Interfaces: hostInterfaces(
			stat("lo", "", "127.0.0.1/8", "::1/128"),
			stat("eth0", "00:11:22:33:44:55", "192.168.1.50/24"),
		),
		Connections: noConnections,
	})

	b, err := report.Marshal(res, false)
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}
	want := `{"tun0_vpn":null,"lan_ip4":{"address":"192.168.1.50","interface":"eth0","mac":"00:11:22:33:44:55"},` +
		`"lan_ip6":null,"wan_ip4":"198.51.100.9","detect_vpn":false,"has_remote_ssh":false,"has_incoming_ssh":false}` + "\n"
	if string(b) != want {
		t.Errorf("output mismatch\n got: %s\nwant: %s", b, want)
	}
}

func TestRun_TunnelDetected(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.WAN.Enabled = false

	res := run(t, cfg, Sources{
		Interfaces: hostInterfaces(
			stat("wlp2s0", "aa:bb:cc:dd:ee:ff", "192.168.1.77/24", "2001:db8::77/64"),
			stat("tun0", "", "10.8.0.5/24"),
		),
		Connections: noConnections,
	})

	if res.Tunnel == nil || res.Tunnel.Address != "10.8.0.5" || res.Tunnel.Interface != "tun0" {
		t.Errorf("Tunnel = %+v, want 10.8.0.5 on tun0", res.Tunnel)
	}
	if !res.VPNDetected {
		t.Error("VPNDetected should be true")
	}
	if res.LANIPv4 == nil || res.LANIPv4.Interface != "wlp2s0" {
		t.Errorf("LANIPv4 = %+v, want wlp2s0", res.LANIPv4)
	}
	if res.LANIPv6 == nil || res.LANIPv6.Address != "2001:db8::77" {
		t.Errorf("LANIPv6 = %+v, want 2001:db8::77", res.LANIPv6)
	}
	if res.WANIPv4 != "" {
		t.Errorf("WANIPv4 = %q, want empty when disabled", res.WANIPv4)
	}
}

func TestRun_WANFailuresAreSoft(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "oops"},
		{"malformed body", http.StatusOK, "<html></html>"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			cfg.WAN.URL = wanStub(t, tt.status, tt.body)
			cfg.WAN.Timeout = time.Second

			res := run(t, cfg, Sources{
				Interfaces:  hostInterfaces(stat("eth0", "", "192.168.1.50/24")),
				Connections: noConnections,
			})
			if res.WANIPv4 != "" {
				t.Errorf("WANIPv4 = %q, want empty", res.WANIPv4)
			}
			if res.LANIPv4 == nil {
				t.Error("other fields should still be populated")
			}
		})
	}
}

func TestRun_WANTimeoutIsSoft(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.WAN.URL = srv.URL
	cfg.WAN.Timeout = 50 * time.Millisecond

	res := run(t, cfg, Sources{
		Interfaces:  hostInterfaces(),
		Connections: noConnections,
	})
	if res.WANIPv4 != "" {
		t.Errorf("WANIPv4 = %q, want empty", res.WANIPv4)
	}
}

func TestRun_DeadlineDuringWANKeepsLocalResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.WAN.URL = srv.URL
	cfg.WAN.Timeout = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var logs bytes.Buffer
	res, err := Run(ctx, Options{
		RunID: "deadline",
		Collectors: NewCollectors(cfg, Sources{
			Interfaces: hostInterfaces(stat("eth0", "", "192.168.1.50/24")),
			Connections: func(context.Context, string) ([]gnet.ConnectionStat, error) {
				return []gnet.ConnectionStat{{
					Status: "ESTABLISHED",
					Laddr:  gnet.Addr{IP: "192.168.1.50", Port: 40000},
					Raddr:  gnet.Addr{IP: "203.0.113.40", Port: 22},
				}}, nil
			},
		}),
		Logger: zerolog.New(&logs),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.LANIPv4 == nil || res.LANIPv4.Address != "192.168.1.50" {
		t.Errorf("LANIPv4 = %+v, want 192.168.1.50", res.LANIPv4)
	}
	if res.WANIPv4 != "" {
		t.Errorf("WANIPv4 = %q, want empty", res.WANIPv4)
	}
	if !res.HasRemoteSSH {
		t.Error("ssh collector should still run after the deadline")
	}
	if !strings.Contains(logs.String(), "run deadline passed") {
		t.Errorf("logs missing deadline warning: %s", logs.String())
	}
}

func TestRun_InterfacesListedOnce(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.WAN.Enabled = false

	var calls atomic.Int32
	res := run(t, cfg, Sources{
		Interfaces: func(context.Context) (gnet.InterfaceStatList, error) {
			calls.Add(1)
			return gnet.InterfaceStatList{
				stat("eth0", "", "192.168.1.50/24"),
				stat("tun0", "", "10.8.0.5/24"),
			}, nil
		},
		Connections: noConnections,
	})
	if n := calls.Load(); n != 1 {
		t.Errorf("interfaces listed %d times, want 1", n)
	}
	if res.LANIPv4 == nil || res.Tunnel == nil {
		t.Errorf("Result = %+v, want LAN and tunnel addresses", res)
	}
}

func TestRun_SSHFlags(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.WAN.Enabled = false

	res := run(t, cfg, Sources{
		Interfaces: hostInterfaces(),
		Connections: func(context.Context, string) ([]gnet.ConnectionStat, error) {
			return []gnet.ConnectionStat{{
				Status: "ESTABLISHED",
				Laddr:  gnet.Addr{IP: "192.168.1.50", Port: 22},
				Raddr:  gnet.Addr{IP: "203.0.113.40", Port: 51234},
			}}, nil
		},
	})
	if !res.HasIncomingSSH || res.HasRemoteSSH {
		t.Errorf("incoming=%v remote=%v, want true/false", res.HasIncomingSSH, res.HasRemoteSSH)
	}
}

func TestRun_SourceErrorsAreSoft(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.WAN.Enabled = false

	var logs bytes.Buffer
	res, err := Run(context.Background(), Options{
		RunID: "soft",
		Collectors: NewCollectors(cfg, Sources{
			Interfaces: func(context.Context) (gnet.InterfaceStatList, error) {
				return nil, errors.New("enumeration failed")
			},
			Connections: func(context.Context, string) ([]gnet.ConnectionStat, error) {
				return nil, errors.New("permission denied")
			},
		}),
		Logger: zerolog.New(&logs),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res != (Result{}) {
		t.Errorf("Result = %+v, want zero value", res)
	}
	out := logs.String()
	for _, name := range []string{`"collector":"lan"`, `"collector":"tunnel"`, `"collector":"ssh"`, `"run_id":"soft"`} {
		if !strings.Contains(out, name) {
			t.Errorf("logs missing %s: %s", name, out)
		}
	}
}

type panicCollector struct{}

func (panicCollector) Name() string { return "broken" }

func (panicCollector) Collect(context.Context, collectors.RunContext) (collectors.Findings, error) {
	panic("nil map write")
}

func TestRun_PanicIsHardFailure(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), Options{
		Collectors: []collectors.Collector{panicCollector{}},
		Logger:     zerolog.Nop(),
	})
	if err == nil {
		t.Fatal("expected error from panicking collector")
	}
	if !strings.Contains(err.Error(), "broken") || !strings.Contains(err.Error(), "nil map write") {
		t.Errorf("error = %q, want collector name and panic value", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{
		Collectors: []collectors.Collector{panicCollector{}},
		Logger:     zerolog.Nop(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestNewCollectors_Order(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	var names []string
	for _, c := range NewCollectors(cfg, Sources{}) {
		names = append(names, c.Name())
	}
	if got := strings.Join(names, ","); got != "lan,tunnel,wan,ssh" {
		t.Errorf("collectors = %s, want lan,tunnel,wan,ssh", got)
	}

	cfg.WAN.Enabled = false
	names = names[:0]
	for _, c := range NewCollectors(cfg, Sources{}) {
		names = append(names, c.Name())
	}
	if got := strings.Join(names, ","); got != "lan,tunnel,ssh" {
		t.Errorf("collectors = %s, want lan,tunnel,ssh", got)
	}
}
