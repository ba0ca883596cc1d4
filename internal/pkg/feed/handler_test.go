package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/jwt"
)

type fakeReader struct {
	events []Event
	err    error
	limit  int
}

func (f *fakeReader) Recent(_ context.Context, _ uuid.UUID, limit int) ([]Event, error) {
	f.limit = limit
	return f.events, f.err
}

func getFeed(t *testing.T, reader Reader, query string) *httptest.ResponseRecorder {
	t.Helper()
	jwtSvc := jwt.NewService("feed-secret")
	token, err := jwtSvc.Issue(uuid.New(), "", time.Hour)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Mount("/feed", NewHandler(reader).Routes(middleware.Auth(jwtSvc)))

	req := httptest.NewRequest(http.MethodGet, "/feed"+query, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestFeedEndpoint(t *testing.T) {
	reader := &fakeReader{events: []Event{{ID: uuid.New(), Amount: 50, Reason: "daily_claim"}}}
	rec := getFeed(t, reader, "?limit=5")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, reader.limit)

	var body struct {
		Data []Event `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(50), body.Data[0].Amount)
}

func TestFeedOutageShowsEmpty(t *testing.T) {
	rec := getFeed(t, &fakeReader{err: errors.New("redis down")}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}
