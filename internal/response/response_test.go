package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	gerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

var (
	errTooLarge = gerrors.New("File too large.", gerrors.CategoryBadInput).WithCode(413)
	errRemote   = gerrors.New("Error uploading file to remote storage.", gerrors.CategoryExternal).WithCode(500)
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "typed error",
			err:        errTooLarge,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   `{"error":"File too large."}`,
		},
		{
			name:       "wrapped typed error keeps its message",
			err:        fmt.Errorf("%w: connection reset by peer", errRemote),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Error uploading file to remote storage."}`,
		},
		{
			name:       "first typed error wins",
			err:        fmt.Errorf("%w: %w", errTooLarge, errRemote),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantBody:   `{"error":"File too large."}`,
		},
		{
			name:       "untyped error is hidden",
			err:        errors.New("open /var/uploads/x: permission denied"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"Internal server error."}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			status := FromError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestRouterFallbacks(t *testing.T) {
	rec := httptest.NewRecorder()
	RouteNotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Route not found."}`, rec.Body.String())

	rec = httptest.NewRecorder()
	MethodNotAllowed(rec, httptest.NewRequest(http.MethodPut, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed."}`, rec.Body.String())
}
