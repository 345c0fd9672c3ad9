package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/notification"
)

func Test_notificationApi(t *testing.T) {
	f := setup(t)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	notification.NowFunc = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	t.Cleanup(func() { notification.NowFunc = time.Now })

	f.record(t, f.culture, ledger.DomainCultureWing, 3, "program_fee", "60000", "Festival")
	f.record(t, f.culture, ledger.DomainCultureWing, 3, "venue_rent", "60000", "Hall") // expenses raise nothing
	f.record(t, f.school, ledger.DomainSchoolFee, 7, "revenue", "100", "Parent A")

	list := func(t *testing.T, query, token string) []notification.Notification {
		rec := f.do(http.MethodGet, "/v1/notifications"+query, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ns []notification.Notification
		unmarshal(t, rec, &ns)
		return ns
	}

	// notifications are organization-wide
	ns := list(t, "", f.schoolToken)
	require.Len(t, ns, 2)
	assert.Equal(t, notification.PriorityMedium, ns[0].Priority)
	assert.Equal(t, notification.PriorityUrgent, ns[1].Priority)
	assert.Equal(t, "transaction", ns[1].RelatedEntityType.String)
	assert.Len(t, list(t, "?limit=1", f.cultureToken), 1)

	runHTTPTests(t, f, []httpTest{
		{name: "Auth required", path: "/v1/notifications", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid limit", path: "/v1/notifications?limit=abc", token: f.schoolToken,
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"limit":"must be a positive integer"}`),
		},
		{
			name: "invalid unreadOnly", path: "/v1/notifications?unreadOnly=maybe", token: f.schoolToken,
			wantCode: http.StatusUnprocessableEntity, wantData: []byte(`{"unreadOnly":"must be true or false"}`),
		},
		{name: "unread count", path: "/v1/notifications/unread-count", token: f.superToken, wantCode: http.StatusOK, wantData: []byte(`{"count":2}`)},
		{
			name: "retrieve unknown", path: "/v1/notifications/lol", token: f.superToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "notification not found"}),
		},
		{
			name: "mark unknown read", method: http.MethodPost, path: "/v1/notifications/6c0d7b4e-0f57-4d8e-9a9f-2c1b0b3f7d11/mark-read", token: f.superToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "notification not found"}),
		},
	})

	rec := f.do(http.MethodGet, "/v1/notifications/"+ns[1].ID, f.cultureToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var got notification.Notification
	unmarshal(t, rec, &got)
	assert.Equal(t, ns[1].ID, got.ID)
	assert.False(t, got.IsRead)

	rec = f.do(http.MethodPost, "/v1/notifications/"+ns[1].ID+"/mark-read", f.cultureToken)
	require.Equal(t, http.StatusOK, rec.Code)
	unmarshal(t, rec, &got)
	assert.True(t, got.IsRead)
	assert.True(t, got.ReadAt.Valid)

	unread := list(t, "?unreadOnly=true", f.superToken)
	require.Len(t, unread, 1)
	assert.Equal(t, ns[0].ID, unread[0].ID)

	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"updated":1}`)},
		f.do(http.MethodPost, "/v1/notifications/mark-all-read", f.superToken))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"count":0}`)},
		f.do(http.MethodGet, "/v1/notifications/unread-count", f.schoolToken))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"updated":0}`)},
		f.do(http.MethodPost, "/v1/notifications/mark-all-read", f.superToken))
}
