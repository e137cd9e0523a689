package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listReq struct {
	Limit int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=500"`
	Name  string `json:"name" validate:"required"`
}

func newCtx(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestReadAndValidateRequestDefaults(t *testing.T) {
	c, _ := newCtx(http.MethodPost, "/", `{"name":"a"}`)
	var req listReq
	require.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, 20, req.Limit)
}

func TestReadAndValidateRequestErrors(t *testing.T) {
	c, _ := newCtx(http.MethodPost, "/?limit=900", `{}`)
	var req listReq
	res := ReadAndValidateRequest(c, &req)
	errs, ok := res.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)

	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Code
	}
	assert.Equal(t, "ERR_LTE", fields["limit"])
	assert.Equal(t, "ERR_REQUIRED", fields["name"])
}

func TestSideValidator(t *testing.T) {
	type sideReq struct {
		Side string `json:"side" validate:"required,side"`
	}
	for body, ok := range map[string]bool{
		`{"side":"long"}`:  true,
		`{"side":"Short"}`: true,
		`{"side":"up"}`:    false,
		`{}`:               false,
	} {
		c, _ := newCtx(http.MethodPost, "/", body)
		res := ReadAndValidateRequest(c, &sideReq{})
		if ok {
			assert.Nil(t, res, body)
			continue
		}
		require.NotNil(t, res, body)
		errs := res.([]ValidationError)
		assert.Equal(t, "side", errs[0].Field, body)
	}
}

func TestErrorResponse(t *testing.T) {
	c, rec := newCtx(http.MethodGet, "/", "")
	require.NoError(t, ErrorResponse(c, NotFound("version %d", 4)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Status int               `json:"status"`
		Data   []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, CodeNotFound, body.Data[0].Code)
	assert.Equal(t, "version 4", body.Data[0].Message)

	c, rec = newCtx(http.MethodGet, "/", "")
	wrapped := fmt.Errorf("handler: %w", Fail(http.StatusBadRequest, "ERR_PAIR_INDEX", "bad index").On("index"))
	require.NoError(t, ErrorResponse(c, wrapped))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"index"`)

	c, rec = newCtx(http.MethodGet, "/", "")
	require.NoError(t, ErrorResponse(c, errors.New("dial tcp: refused")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "refused")
}

func TestServerHealth(t *testing.T) {
	s := NewServer(nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
