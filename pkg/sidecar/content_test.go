package sidecar

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	body    []byte
	headers http.Header
	err     error
}

func (f *stubFetcher) FetchURL(string) ([]byte, http.Header, error) {
	return f.body, f.headers, f.err
}

func TestResolveTextPassthrough(t *testing.T) {
	t.Parallel()

	r := NewResolver(&stubFetcher{}, false)
	filename, payload, err := r.Resolve("values.yaml", "a: 1", ContentText, "ns", KindConfigMap, "cm")
	require.NoError(t, err)
	require.Equal(t, "values.yaml", filename)
	require.Equal(t, []byte("a: 1"), payload)
}

func TestResolveBinaryDecodesBase64(t *testing.T) {
	t.Parallel()

	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	r := NewResolver(&stubFetcher{}, false)
	_, payload, err := r.Resolve("blob", base64.StdEncoding.EncodeToString(raw), ContentBinary, "ns", KindConfigMap, "cm")
	require.NoError(t, err)
	require.Equal(t, raw, payload)
}

func TestResolveURLIndirection(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte("fetched content")}
	r := NewResolver(fetcher, false)
	filename, payload, err := r.Resolve("remote.txt.url", "http://example/remote.txt", ContentText, "ns", KindConfigMap, "cm")
	require.NoError(t, err)
	require.Equal(t, "remote.txt", filename)
	require.Equal(t, "fetched content", string(payload))
}

func TestResolveURLIndirectionGunzips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("decompressed"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	headers := http.Header{}
	headers.Set("Content-Encoding", "gzip")
	fetcher := &stubFetcher{body: buf.Bytes(), headers: headers}

	r := NewResolver(fetcher, false)
	_, payload, err := r.Resolve("remote.txt.url", "http://example/remote.txt", ContentText, "ns", KindConfigMap, "cm")
	require.NoError(t, err)
	require.Equal(t, "decompressed", string(payload))
}

func TestResolveUniqueFilenames(t *testing.T) {
	t.Parallel()

	r := NewResolver(&stubFetcher{}, true)
	filename, _, err := r.Resolve("values.yaml", "a: 1", ContentText, "monitoring", KindConfigMap, "dashboards")
	require.NoError(t, err)
	require.Equal(t, "namespace_monitoring.configmap_dashboards.values.yaml", filename)
}

func TestResolveInvalidBase64Errors(t *testing.T) {
	t.Parallel()

	r := NewResolver(&stubFetcher{}, false)
	_, _, err := r.Resolve("blob", "not-base64!!", ContentBinary, "ns", KindConfigMap, "cm")
	require.Error(t, err)
}
