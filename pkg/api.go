package pkg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/context/ctxhttp"
)

const DefaultSourceURL = "https://raw.githubusercontent.com/owid/covid-19-data/master/public/data/latest/owid-covid-latest.json"

// ErrFetch is returned once every attempt to download the snapshot has failed.
var ErrFetch = errors.New("failed to fetch source snapshot")

// FetchSnapshot downloads and parses the upstream document, retrying with a fixed
// delay on transport errors, bad statuses and malformed bodies. Only the countries of
// CountriesFilter are kept when it is set.
func (api *ApiMetadata) FetchSnapshot(ctx context.Context) (*SourceSnapshot, error) {
	var snapshot *SourceSnapshot
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		snapshot, err = api.fetchOnce(ctx)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(api.RetryDelay), api.Retries),
		ctx,
	)
	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("url", api.URL).Int("attempt", attempt).Dur("retry_in", wait).
			Msg("Failed to fetch source snapshot, retrying")
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrFetch, attempt, err)
	}
	log.Info().Str("url", api.URL).Int("countries", len(snapshot.Codes)).Int("attempts", attempt).
		Msg("Fetched source snapshot")
	return snapshot.FilterCountries(api.CountriesFilter), nil
}

func (api *ApiMetadata) fetchOnce(ctx context.Context) (*SourceSnapshot, error) {
	if api.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, api.Timeout)
		defer cancel()
	}
	resp, err := ctxhttp.Get(ctx, http.DefaultClient, api.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint: errcheck
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, api.URL)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading response body: %w", err)
	}
	return ParseSnapshot(raw)
}
