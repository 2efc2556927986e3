package tools

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/vaidyahealth/vaidya/internal/utils"
	"github.com/vaidyahealth/vaidya/triage"
)

const (
	// directoryTimeout bounds one directory page fetch.
	directoryTimeout = 15 * time.Second
	// directoryMaxBodySize caps the response body (2MB); directory pages
	// larger than this are rejected rather than truncated.
	directoryMaxBodySize = 2 * 1024 * 1024
)

// Directory fetches a healthcare provider directory page over HTTP and
// converts it to Markdown for prompt injection. The endpoint is expected to
// return HTML and accept lat, lng, and specialty query parameters. A
// Directory with an empty endpoint reports every lookup as unavailable so
// the provider locator can degrade to guidance text.
type Directory struct {
	endpoint   string
	httpClient *http.Client
}

// NewDirectory creates a Directory for the given endpoint URL. An empty
// endpoint is valid and produces a directory that is permanently
// unavailable.
func NewDirectory(endpoint string) *Directory {
	return &Directory{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: directoryTimeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}
}

// Available reports whether a directory endpoint is configured.
func (directory *Directory) Available() bool {
	return directory.endpoint != ""
}

// Lookup fetches the directory page for the given specialty and location and
// returns its content as Markdown. Failures are wrapped in
// [triage.ExternalProviderError] so callers can degrade gracefully.
func (directory *Directory) Lookup(ctx context.Context, specialty string, location triage.GeoPoint) (string, error) {
	if !directory.Available() {
		return "", &triage.ExternalProviderError{
			Service: "provider-directory",
			Err:     fmt.Errorf("no directory endpoint configured"),
		}
	}

	requestURL, err := directory.buildURL(specialty, location)
	if err != nil {
		return "", &triage.ExternalProviderError{Service: "provider-directory", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, directoryTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", &triage.ExternalProviderError{Service: "provider-directory", Err: err}
	}

	response, err := directory.httpClient.Do(request)
	if err != nil {
		return "", &triage.ExternalProviderError{Service: "provider-directory", Err: err}
	}
	defer utils.CloseWithLog(response.Body)

	if response.StatusCode != http.StatusOK {
		return "", &triage.ExternalProviderError{
			Service: "provider-directory",
			Err:     fmt.Errorf("unexpected status %d", response.StatusCode),
		}
	}

	htmlBytes, err := io.ReadAll(io.LimitReader(response.Body, directoryMaxBodySize+1))
	if err != nil {
		return "", &triage.ExternalProviderError{Service: "provider-directory", Err: err}
	}
	if len(htmlBytes) > directoryMaxBodySize {
		return "", &triage.ExternalProviderError{
			Service: "provider-directory",
			Err:     fmt.Errorf("directory page exceeds %d bytes", directoryMaxBodySize),
		}
	}

	markdown, err := htmltomarkdown.ConvertString(string(htmlBytes))
	if err != nil {
		return "", &triage.ExternalProviderError{Service: "provider-directory", Err: err}
	}

	return markdown, nil
}

// buildURL appends the lookup query parameters to the configured endpoint.
func (directory *Directory) buildURL(specialty string, location triage.GeoPoint) (string, error) {
	parsed, err := url.Parse(directory.endpoint)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	query.Set("lat", strconv.FormatFloat(location.Lat, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(location.Lng, 'f', -1, 64))
	if specialty != "" {
		query.Set("specialty", specialty)
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
