package photon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/mediarename/internal/domain"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func TestParse_Attraction(t *testing.T) {
	addr, err := Provider{}.Parse(fixture(t, "reverse_bridge.json"))
	require.NoError(t, err)

	assert.Equal(t, "Golden Gate Bridge", addr["attraction"])
	assert.Equal(t, "Golden Gate Bridge", addr["tourism"])
	assert.Equal(t, "Presidio", addr["suburb"])
	assert.Equal(t, "San Francisco", addr["city"])
	assert.Equal(t, "California", addr["state"])
	assert.Equal(t, "United States", addr["country"])
	assert.Equal(t, "us", addr["country_code"])
}

func TestParse_PlaceTypeCity(t *testing.T) {
	addr, err := Provider{}.Parse(fixture(t, "reverse_village.json"))
	require.NoError(t, err)

	assert.Equal(t, "Grainau", addr["city"])
	assert.Equal(t, "Bavaria", addr["state"])
	assert.Empty(t, addr["attraction"])
}

func TestParse_Errors(t *testing.T) {
	_, err := Provider{}.Parse([]byte(`{"features":[],"type":"FeatureCollection"}`))
	assert.Error(t, err)

	_, err = Provider{}.Parse([]byte(`not json`))
	assert.Error(t, err)

	_, err = Provider{}.Parse([]byte(`{"features":[{"properties":{}}]}`))
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	body := fixture(t, "reverse_bridge.json")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "37.8199", r.URL.Query().Get("lat"))
		assert.Equal(t, "-122.4786", r.URL.Query().Get("lon"))
		assert.Equal(t, "de", r.URL.Query().Get("lang"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	p := Provider{BaseURL: srv.URL, Language: "de"}
	b, _, err := p.Fetch(context.Background(), domain.Coords{Lat: 37.8199, Lon: -122.4786}, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, body, b)
}
