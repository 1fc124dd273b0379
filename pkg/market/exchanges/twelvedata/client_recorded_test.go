package twelvedata

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/cassette"
	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
)

// Replays a recorded time_series call. Skips when the cassette is absent
// and RECORD_CASSETTES != 1; recording needs TWELVE_DATA_API_KEY.
func TestProvider_FetchBars_Recorded(t *testing.T) {
	cassettePath := filepath.Join("testdata", "cassettes", "twelvedata_time_series")
	if _, err := os.Stat(cassettePath + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassettePath)
		}
		err := os.MkdirAll(filepath.Dir(cassettePath), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassettePath)
	assert.NoError(t, err, "recorder.New should not error")
	defer func() { _ = r.Stop() }()
	r.AddFilter(func(i *cassette.Interaction) error {
		i.URL = withoutAPIKey(i.URL)
		return nil
	})
	r.SetMatcher(func(req *http.Request, i cassette.Request) bool {
		return req.Method == i.Method && withoutAPIKey(req.URL.String()) == withoutAPIKey(i.URL)
	})

	client := NewClient(
		WithHTTPClient(&http.Client{Transport: r}),
		WithAPIKey(os.Getenv("TWELVE_DATA_API_KEY")),
		WithMaxRetries(0),
	)
	series, err := NewProvider(client).FetchBars(context.Background(), "AAPL", "1day", 30)
	assert.NoError(t, err, "FetchBars should not error")
	assert.Greater(t, series.Len(), 0, "series should not be empty")
	assert.NoError(t, series.Validate())
}

func withoutAPIKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Del("apikey")
	u.RawQuery = q.Encode()
	return u.String()
}
