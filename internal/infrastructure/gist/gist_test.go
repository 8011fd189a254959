package gist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobschulman/stonewatch/internal/internaltypes"
)

type fakeGist struct {
	files map[string]map[string]any
	raw   string
}

func (f *fakeGist) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/gists/abc", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token tok", r.Header.Get("authorization"))
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"files": f.files})
		case http.MethodPatch:
			var body struct {
				Files map[string]struct {
					Content string `json:"content"`
				} `json:"files"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for name, file := range body.Files {
				f.files[name] = map[string]any{"content": file.Content}
			}
			_, _ = io.WriteString(w, `{}`)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/raw/seen.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, f.raw)
	})
	return mux
}

func TestGistRoundTrip(t *testing.T) {
	fake := &fakeGist{files: map[string]map[string]any{"other.json": {"content": "x"}}}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	s := New("abc", "tok", "seen.json").WithAPI(srv.URL + "/")
	ctx := context.Background()

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, internaltypes.ErrNotFound)

	require.NoError(t, s.Put(ctx, []byte(`{"k":1}`)))
	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"k":1}`, string(got))
	assert.Equal(t, "x", fake.files["other.json"]["content"], "other files untouched")
}

func TestGistTruncatedFollowsRawURL(t *testing.T) {
	fake := &fakeGist{raw: `{"big":true}`}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	fake.files = map[string]map[string]any{
		"seen.json": {"content": `{"bi`, "truncated": true, "raw_url": srv.URL + "/raw/seen.json"},
	}

	got, err := New("abc", "tok", "seen.json").WithAPI(srv.URL).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"big":true}`, string(got))
}

func TestGistErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := New("abc", "tok", "seen.json").WithAPI(srv.URL)
	_, err := s.Get(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, internaltypes.ErrNotFound)
	assert.Error(t, s.Put(context.Background(), []byte("{}")))

	_, err = New("", "", "seen.json").Get(context.Background())
	assert.Error(t, err)
}
