// Package probe checks whether a camera host answers on the network before
// a playback session is attempted.
package probe

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultFallbackPorts are tried when the video port does not answer.
var DefaultFallbackPorts = []int{80, 443, 22, 40000, 40005}

// Status is the outcome of one TCP connect attempt.
type Status int

const (
	Unreachable Status = iota
	Open
	// Refused means the host answered with a reset; it is up but nothing
	// listens on the port.
	Refused
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Refused:
		return "refused"
	default:
		return "unreachable"
	}
}

// Result is one probed port.
type Result struct {
	Port    int
	Status  Status
	Latency time.Duration
	Err     error
}

// Reachable reports whether the port proves the host is up.
func (r Result) Reachable() bool {
	return r.Status == Open || r.Status == Refused
}

// Report collects the probe of the main port and, when it failed, the
// fallback ports in the order given.
type Report struct {
	Host      string
	Primary   Result
	Fallbacks []Result
}

// Reachable reports whether any probed port proves the host is up.
func (r Report) Reachable() bool {
	if r.Primary.Reachable() {
		return true
	}
	for _, f := range r.Fallbacks {
		if f.Reachable() {
			return true
		}
	}
	return false
}

// Results returns the primary result followed by the fallbacks.
func (r Report) Results() []Result {
	return append([]Result{r.Primary}, r.Fallbacks...)
}

// Port attempts one TCP connection within timeout.
func Port(ctx context.Context, host string, port int, timeout time.Duration) Result {
	d := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	res := Result{Port: port, Latency: time.Since(start)}

	switch {
	case err == nil:
		conn.Close()
		res.Status = Open
	case errors.Is(err, syscall.ECONNREFUSED):
		res.Status = Refused
	default:
		res.Status = Unreachable
		res.Err = err
	}
	return res
}

// Host probes port and, if that fails, every fallback port concurrently.
func Host(ctx context.Context, host string, port int, fallbacks []int, timeout time.Duration) (Report, error) {
	if host == "" {
		return Report{}, errors.New("probe: empty host")
	}

	report := Report{Host: host, Primary: Port(ctx, host, port, timeout)}
	if report.Primary.Reachable() || len(fallbacks) == 0 {
		return report, nil
	}

	results := make([]Result, len(fallbacks))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range fallbacks {
		g.Go(func() error {
			results[i] = Port(gctx, host, p, timeout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Fallbacks = results
	return report, ctx.Err()
}

// IsHostReachable probes port then DefaultFallbackPorts.
func IsHostReachable(ctx context.Context, host string, port int, timeout time.Duration) bool {
	report, err := Host(ctx, host, port, DefaultFallbackPorts, timeout)
	return err == nil && report.Reachable()
}
