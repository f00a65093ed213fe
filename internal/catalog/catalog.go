// Package catalog queries The National Map (TNM) products API for
// download descriptors matching a bounding box and dataset type.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/ces0157/usgs-data-tool/internal/geo"
	"github.com/ces0157/usgs-data-tool/internal/usgserr"
)

// BaseURL is the TNM products endpoint.
const BaseURL = "https://tnmaccess.nationalmap.gov/api/v1/products"

const requestTimeout = 30 * time.Second

// Product is one downloadable dataset item from the catalog.
type Product struct {
	Title           string
	PublicationDate string
	Format          string
	URL             string
}

//go:embed datasets.json
var datasetsJSON []byte

// Dataset resolves the TNM dataset name and product format for a data
// kind ("dem" or "lidar") and spec ("regular" or "seamless").
func Dataset(kind, spec string) (name, format string, err error) {
	root, err := oj.Parse(datasetsJSON)
	if err != nil {
		return "", "", fmt.Errorf("parse dataset table: %w", err)
	}

	get := func(field string) (string, error) {
		x, err := jp.ParseString(fmt.Sprintf("$.%s.%s.%s", kind, spec, field))
		if err != nil {
			return "", err
		}
		results := x.Get(root)
		if len(results) == 0 {
			return "", fmt.Errorf("%w: no %s for dataset %s/%s", usgserr.ErrMissingConfigKey, field, kind, spec)
		}
		s, ok := results[0].(string)
		if !ok {
			return "", fmt.Errorf("%w: %s for %s/%s is not a string", usgserr.ErrMissingConfigKey, field, kind, spec)
		}
		return s, nil
	}

	if name, err = get("usgs_name"); err != nil {
		return "", "", err
	}
	if format, err = get("usgs_data_format"); err != nil {
		return "", "", err
	}
	return name, format, nil
}

// Client queries the TNM products API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient() *Client {
	return &Client{
		BaseURL:    BaseURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

// Products lists the download descriptors for the dataset inside bbox
// (WGS84 lon/lat).
func (c *Client) Products(ctx context.Context, bbox geo.Bounds, datasetName, prodFormat string) ([]Product, error) {
	q := url.Values{}
	q.Set("datasets", datasetName)
	q.Set("bbox", fmt.Sprintf("%v,%v,%v,%v", bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY))
	q.Set("prodFormats", prodFormat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", usgserr.ErrMalformedURL, err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, fmt.Errorf("%w: catalog query: %v", usgserr.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: catalog query: %v", usgserr.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: catalog returned %s", usgserr.ErrConnectionFailed, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog response: %v", usgserr.ErrConnectionFailed, err)
	}
	root, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid catalog response: %v", usgserr.ErrConnectionFailed, err)
	}

	items := jp.MustParseString("$.items[*]").Get(root)
	products := make([]Product, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		products = append(products, Product{
			Title:           str(fields["title"]),
			PublicationDate: str(fields["publicationDate"]),
			Format:          str(fields["prodFormats"]),
			URL:             str(fields["downloadURL"]),
		})
	}
	return products, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
