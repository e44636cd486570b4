package extractor

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tubevault/tubevault/internal/taskerr"
	"github.com/tubevault/tubevault/internal/telemetry"
)

// ResilientGateway wraps a Gateway with a token-bucket rate limiter
// (golang.org/x/time/rate, grounded on ManuGH-xg2g/tomtom215-cartographus/
// ZaparooProject's direct use of the same package) and a circuit breaker
// (github.com/sony/gobreaker/v2, grounded on tomtom215-cartographus) so a
// string of upstream failures trips open instead of hammering the site.
type ResilientGateway struct {
	inner   Gateway
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

// NewResilientGateway builds a decorator allowing ratePerSecond requests
// per second (bursting to burst) against inner, tripping the breaker after
// five consecutive failed calls of any error kind.
func NewResilientGateway(inner Gateway, ratePerSecond float64, burst int) *ResilientGateway {
	settings := gobreaker.Settings{
		Name:        "extractor-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			telemetry.ExtractorGatewayState.Set(float64(to))
		},
	}
	return &ResilientGateway{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

func (g *ResilientGateway) wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return nil
}

func (g *ResilientGateway) ListItems(ctx context.Context, sourceURL string, since *time.Time, onlyStreams bool) ([]RawItem, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.ListItems(ctx, sourceURL, since, onlyStreams)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return result.([]RawItem), nil
}

func (g *ResilientGateway) FetchMediaDetails(ctx context.Context, url string) (*RawMetadata, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.FetchMediaDetails(ctx, url)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return result.(*RawMetadata), nil
}

func (g *ResilientGateway) Download(ctx context.Context, url, formatSelector, container, outputPath string, opts DownloadOptions, progress ProgressFunc) (string, string, error) {
	if err := g.wait(ctx); err != nil {
		return "", "", err
	}
	type downloadResult struct{ format, container string }
	result, err := g.breaker.Execute(func() (any, error) {
		f, c, err := g.inner.Download(ctx, url, formatSelector, container, outputPath, opts, progress)
		if err != nil {
			return nil, err
		}
		return downloadResult{f, c}, nil
	})
	if err != nil {
		return "", "", translateBreakerErr(err)
	}
	dr := result.(downloadResult)
	return dr.format, dr.container, nil
}

// translateBreakerErr preserves taskerr sentinel membership through the
// breaker, surfacing gobreaker.ErrOpenState as a Transient failure so the
// scheduler reschedules rather than recording a permanent error.
func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return taskerr.Transient
	}
	return err
}
