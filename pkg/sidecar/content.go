package sidecar

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const urlSuffix = ".url"

func base64StdEncode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// urlFetcher is the subset of Notifier's request primitive the content resolver needs for §4.2
// step 3's ".url" indirection. Kept as a narrow interface so content_test.go can stub it without
// standing up an HTTP server for every case.
type urlFetcher interface {
	FetchURL(url string) ([]byte, http.Header, error)
}

// Resolver is the content resolver (C2, §4.2).
type Resolver struct {
	fetcher         urlFetcher
	uniqueFilenames bool
}

// NewResolver constructs a Resolver. fetcher supplies the GET used for ".url" indirection.
func NewResolver(fetcher urlFetcher, uniqueFilenames bool) *Resolver {
	return &Resolver{fetcher: fetcher, uniqueFilenames: uniqueFilenames}
}

// Resolve implements §4.2: decode, optional ".url" fetch, optional unique-filename rename.
func (r *Resolver) Resolve(dataKey, rawValue string, declaredKind ContentKind, ns string, kind Kind, name string) (filename string, payload []byte, err error) {
	var body []byte
	if declaredKind == ContentBinary {
		body, err = base64.StdEncoding.DecodeString(rawValue)
		if err != nil {
			return "", nil, fmt.Errorf("decoding base64 for key %q: %w", dataKey, err)
		}
	} else {
		body = []byte(rawValue)
	}

	key := dataKey
	if strings.HasSuffix(dataKey, urlSuffix) {
		url := strings.TrimSpace(string(body))
		fetched, headers, ferr := r.fetcher.FetchURL(url)
		if ferr != nil {
			return "", nil, fmt.Errorf("fetching url for key %q: %w", dataKey, ferr)
		}
		if isGzipEncoded(headers) {
			fetched, ferr = gunzip(fetched)
			if ferr != nil {
				return "", nil, fmt.Errorf("ungzipping response for key %q: %w", dataKey, ferr)
			}
		}
		body = fetched
		key = strings.TrimSuffix(dataKey, urlSuffix)
	}

	if r.uniqueFilenames {
		key = fmt.Sprintf("namespace_%s.%s_%s.%s", ns, kind, name, key)
	}
	return key, body, nil
}

func isGzipEncoded(h http.Header) bool {
	if h == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(h.Get("Content-Encoding")), "gzip")
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
