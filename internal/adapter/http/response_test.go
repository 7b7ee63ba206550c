package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aq2208/orders-service/internal/apperr"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindValidationFailed, nethttp.StatusBadRequest},
		{apperr.KindNotFound, nethttp.StatusNotFound},
		{apperr.KindConflict, nethttp.StatusConflict},
		{apperr.KindServiceOverloaded, nethttp.StatusServiceUnavailable},
		{apperr.KindServiceUnavailable, nethttp.StatusServiceUnavailable},
		{apperr.KindTimeout, nethttp.StatusGatewayTimeout},
		{apperr.KindNetworkError, nethttp.StatusBadGateway},
		{apperr.KindPersistenceFailed, nethttp.StatusInternalServerError},
		{apperr.KindStaleCache, nethttp.StatusInternalServerError},
		{apperr.KindUnexpected, nethttp.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.kind))
		})
	}
}

func testContext(t *testing.T, query string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := nethttp.NewRequest(nethttp.MethodGet, "/v1/orders?"+query, nil)
	require.NoError(t, err)
	c.Request = req
	return c, w
}

func TestParseListQuery(t *testing.T) {
	c, _ := testContext(t, "userId=u1&fromDate=2025-06-01&minTotal=19.99&page=2&pageSize=50")

	q, violations := parseListQuery(c)
	require.Empty(t, violations)

	require.NotNil(t, q.UserID)
	assert.Equal(t, "u1", *q.UserID)
	require.NotNil(t, q.FromDate)
	assert.Equal(t, "2025-06-01", q.FromDate.Format("2006-01-02"))
	require.NotNil(t, q.MinTotal)
	assert.Equal(t, "19.99", q.MinTotal.String())
	assert.Nil(t, q.MaxTotal)
	require.NotNil(t, q.Page)
	assert.Equal(t, 2, *q.Page)
	require.NotNil(t, q.PageSize)
	assert.Equal(t, 50, *q.PageSize)
}

func TestParseListQuery_ExplicitZeroIsNotAbsent(t *testing.T) {
	c, _ := testContext(t, "pageSize=0")

	q, violations := parseListQuery(c)
	require.Empty(t, violations)
	assert.Nil(t, q.Page, "absent stays nil for the defaults")
	require.NotNil(t, q.PageSize)
	assert.Equal(t, 0, *q.PageSize, "an explicit zero is carried through to validation")
}

func TestParseListQuery_CollectsEveryMalformedParameter(t *testing.T) {
	c, _ := testContext(t, "fromDate=June&minTotal=cheap&page=first")

	_, violations := parseListQuery(c)
	assert.Len(t, violations, 3)
}

func TestRespondErr_UsesTheEnvelope(t *testing.T) {
	c, w := testContext(t, "")

	respondErr(c, apperr.Validation("order validation failed", []string{"UserID should not be empty"}))

	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	assert.JSONEq(t,
		`{"isSuccess":false,"data":null,"message":"order validation failed","errors":["UserID should not be empty"]}`,
		w.Body.String())
}
