package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientEmbedReturnsOneVectorPerInput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]},{"embedding":[0.3,0.4]}]}`))
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Path: "/", Model: "m"})
	out := c.Embed(context.Background(), []string{"a", "b"})
	require.Len(t, out, 2)
	require.Equal(t, []float32{0.1, 0.2}, out[0])
}

func TestClientEmbedReturnsEmptyOnNon2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Path: "/", Model: "m"})
	out := c.Embed(context.Background(), []string{"a"})
	require.Empty(t, out)
}

func TestClientEmbedReturnsEmptyOnCountMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.1]}]}`))
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Path: "/", Model: "m"})
	out := c.Embed(context.Background(), []string{"a", "b"})
	require.Empty(t, out)
}

func TestClientEmbedReturnsEmptyOnMalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Path: "/", Model: "m"})
	out := c.Embed(context.Background(), []string{"a"})
	require.Empty(t, out)
}

func TestClientSetsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"data":[{"embedding":[0.1]}]}`))
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Path: "/", Model: "m", APIHeader: "Authorization", APIKey: "secret"})
	c.Embed(context.Background(), []string{"a"})
	require.Equal(t, "Bearer secret", gotAuth)
}

func TestCheckReachabilityFailsWhenEndpointDown(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:0", Path: "/", Model: "m"})
	err := c.CheckReachability(context.Background())
	require.Error(t, err)
}

func TestDeterministicIsStableAcrossCalls(t *testing.T) {
	d := NewDeterministic(16)
	a := d.Embed(context.Background(), []string{"hello world"})
	b := d.Embed(context.Background(), []string{"hello world"})
	require.Equal(t, a, b)
}

func TestDeterministicDiffersForDifferentText(t *testing.T) {
	d := NewDeterministic(16)
	out := d.Embed(context.Background(), []string{"alpha", "beta"})
	require.NotEqual(t, out[0], out[1])
}

func TestDeterministicOneVectorPerInput(t *testing.T) {
	d := NewDeterministic(8)
	out := d.Embed(context.Background(), []string{"x", "y", "z"})
	require.Len(t, out, 3)
	for _, v := range out {
		require.Len(t, v, 8)
	}
}
