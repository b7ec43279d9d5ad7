package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/follower-tracker/internal/tracker"
)

func TestProfiles_CreateAndList(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/profiles", `{"name":"Someone","profile_url":"https://www.instagram.com/someone/"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Profile tracker.Profile `json:"profile"`
	}
	decodeBody(t, rec, &created)
	assert.Equal(t, "Someone", created.Profile.Name)
	require.NotEmpty(t, created.Profile.ID)

	rec = env.do(t, http.MethodGet, "/v1/profiles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Profiles []tracker.ProfileSummary `json:"profiles"`
	}
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Profiles, 1)
	assert.Zero(t, listed.Profiles[0].FollowerCount)
	assert.Equal(t, env.now, listed.Profiles[0].LastUpdated)

	rec = env.do(t, http.MethodPost, "/v1/profiles", `{"name":"Again","profile_url":"https://www.instagram.com/someone/"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestProfiles_CreateValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{nope`},
		{name: "missing name", body: `{"profile_url":"https://www.instagram.com/x/"}`},
		{name: "relative url", body: `{"name":"x","profile_url":"/x/"}`},
		{name: "unsupported scheme", body: `{"name":"x","profile_url":"ftp://www.instagram.com/x/"}`},
		{name: "bad avatar", body: `{"name":"x","profile_url":"https://www.instagram.com/x/","avatar_url":"nope"}`},
		{name: "unknown field", body: `{"name":"x","profile_url":"https://www.instagram.com/x/","followers":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, nil)
			rec := env.do(t, http.MethodPost, "/v1/profiles", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestProfiles_CountsAndHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.profiles.CreateProfile(ctx, tracker.Profile{
		ID: "p1", Name: "One", ProfileURL: "https://www.instagram.com/one/", CreatedAt: env.now,
	}))
	for i, count := range []int64{10, 20, 30} {
		require.NoError(t, env.profiles.AppendFollowerCount(ctx, tracker.FollowerCount{
			ID: "seed-" + string(rune('a'+i)), ProfileID: "p1", Count: count,
			RecordedAt: env.now.Add(time.Duration(i-3) * time.Hour),
		}))
	}

	rec := env.do(t, http.MethodPost, "/v1/profiles/p1/counts", `{"count":40}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/v1/profiles/p1/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		History []tracker.FollowerCount `json:"history"`
	}
	decodeBody(t, rec, &history)
	require.Len(t, history.History, 2)
	assert.Equal(t, int64(40), history.History[0].Count)
	assert.Equal(t, int64(30), history.History[1].Count)

	rec = env.do(t, http.MethodGet, "/v1/profiles/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Profile tracker.Profile         `json:"profile"`
		History []tracker.FollowerCount `json:"history"`
	}
	decodeBody(t, rec, &detail)
	assert.Equal(t, "One", detail.Profile.Name)
	assert.Len(t, detail.History, 4)

	for _, body := range []string{`{"count":-1}`, `{}`} {
		rec = env.do(t, http.MethodPost, "/v1/profiles/p1/counts", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	for _, q := range []string{"0", "abc", "5000"} {
		rec = env.do(t, http.MethodGet, "/v1/profiles/p1/history?limit="+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestProfiles_MissingProfile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/v1/profiles/ghost", ""},
		{http.MethodGet, "/v1/profiles/ghost/history", ""},
		{http.MethodPost, "/v1/profiles/ghost/counts", `{"count":1}`},
		{http.MethodPut, "/v1/profiles/ghost/avatar", `{"avatar_url":"https://cdn.example.com/a.jpg"}`},
	} {
		rec := env.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method+" "+tc.path)
	}
}

func TestProfiles_UpdateAvatar(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	require.NoError(t, env.profiles.CreateProfile(context.Background(), tracker.Profile{
		ID: "p1", Name: "One", ProfileURL: "https://www.instagram.com/one/", CreatedAt: env.now,
	}))

	rec := env.do(t, http.MethodPut, "/v1/profiles/p1/avatar", `{"avatar_url":"https://cdn.example.com/one.jpg"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile, err := env.profiles.GetProfile(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/one.jpg", profile.AvatarURL)

	rec = env.do(t, http.MethodPut, "/v1/profiles/p1/avatar", `{"avatar_url":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
