package api_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/internal/apitest"
	"github.com/guarzo/gymapi/modules/api"
)

func newTestClient(t *testing.T) (*apitest.Server, *api.Client) {
	t.Helper()

	server := apitest.NewServer(t)
	user := server.AddUser("Ana", "ana@example.com", "123456")
	server.Issue(user.ID, "T1", "R1")

	client := api.NewClient(server.URL, common.NewHttpClient("gymapi-test", &http.Client{}, 5*time.Second))
	return server, client
}

func TestClient_Request_AttachesDefaultBearer(t *testing.T) {
	server, client := newTestClient(t)
	client.SetDefaultAuthHeader("T1")

	resp, err := client.Get(context.Background(), "/ping")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer T1"}, server.Seen("GET /ping"))
	assert.Equal(t, "Bearer T1", client.DefaultAuthHeader())
}

func TestClient_Request_ExplicitAuthorizationWins(t *testing.T) {
	server, client := newTestClient(t)
	client.SetDefaultAuthHeader("OTHER")

	header := http.Header{}
	header.Set("Authorization", "Bearer T1")
	_, err := client.Request(context.Background(), http.MethodGet, "/ping", nil, header)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bearer T1"}, server.Seen("GET /ping"))
}

func TestClient_SetDefaultAuthHeader_DoesNotTouchBuiltRequests(t *testing.T) {
	server, client := newTestClient(t)
	client.SetDefaultAuthHeader("T1")

	req, err := client.NewRequest(http.MethodGet, "/ping", nil, nil)
	require.NoError(t, err)

	client.SetDefaultAuthHeader("T2")
	_, err = client.Do(context.Background(), req)
	require.NoError(t, err)

	client.SetDefaultAuthHeader("")
	_, err = client.Get(context.Background(), "/ping")
	require.Error(t, err)

	assert.Equal(t, []string{"Bearer T1", ""}, server.Seen("GET /ping"))
}

func TestClient_ErrorClassification(t *testing.T) {
	server, client := newTestClient(t)
	client.SetDefaultAuthHeader("T1")

	t.Run("GenericAPIError", func(t *testing.T) {
		server.Fail("GET /groups", http.StatusBadRequest, `{"status":"error","message":"X"}`)

		_, err := client.Get(context.Background(), "/groups")
		require.Error(t, err)

		assert.True(t, errors.Is(err, common.ErrAPI))
		assert.Equal(t, "X", common.UserMessage(err))

		var httpErr *common.HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	})

	t.Run("UnknownServerError", func(t *testing.T) {
		server.Fail("GET /history", http.StatusInternalServerError, "")

		_, err := client.Get(context.Background(), "/history")
		require.Error(t, err)

		assert.True(t, errors.Is(err, common.ErrUnknownServer))
		assert.Equal(t, common.FallbackMessage, common.UserMessage(err))
	})

	t.Run("TransportError", func(t *testing.T) {
		dead := api.NewClient("http://127.0.0.1:1", common.NewHttpClient("", nil, time.Second))

		_, err := dead.Get(context.Background(), "/ping")
		require.Error(t, err)

		assert.True(t, errors.Is(err, common.ErrUnknownServer))
	})
}

func TestClient_OnResponse(t *testing.T) {
	_, client := newTestClient(t)
	client.SetDefaultAuthHeader("T1")

	var order []string
	ejectFirst := client.OnResponse(func(ctx context.Context, req *api.Request, resp *api.Response, err error) (*api.Response, error) {
		order = append(order, "first")
		return resp, err
	})
	client.OnResponse(func(ctx context.Context, req *api.Request, resp *api.Response, err error) (*api.Response, error) {
		order = append(order, "second")
		return resp, err
	})

	_, err := client.Get(context.Background(), "/ping")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)

	// interceptors also see failures
	order = nil
	_, err = client.Get(context.Background(), "/nope")
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second"}, order)

	order = nil
	ejectFirst()
	ejectFirst()
	_, err = client.Get(context.Background(), "/ping")
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, order)
}

func TestClient_OnResponse_ReplacesOutcome(t *testing.T) {
	_, client := newTestClient(t)

	client.OnResponse(func(ctx context.Context, req *api.Request, resp *api.Response, err error) (*api.Response, error) {
		if err != nil {
			return &api.Response{StatusCode: http.StatusOK, Body: []byte(`{"status":"recovered"}`)}, nil
		}
		return resp, err
	})

	var out map[string]string
	require.NoError(t, client.JSON(context.Background(), http.MethodGet, "/ping", nil, &out))
	assert.Equal(t, "recovered", out["status"])
}

func TestClient_Replay_KeepsBodyAndMarksRequest(t *testing.T) {
	var bodies []string
	var auth []string
	mockHTTP := &mockHttpClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			b, _ := io.ReadAll(req.Body)
			bodies = append(bodies, string(b))
			auth = append(auth, req.Header.Get("Authorization"))
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
			assert.NotEmpty(t, req.Header.Get(api.RequestIDHeader))
			return &http.Response{
				StatusCode: http.StatusCreated,
				Body:       io.NopCloser(bytes.NewBufferString("")),
			}, nil
		},
	}
	client := api.NewClient("https://gym.example.com/api", mockHTTP)
	client.SetDefaultAuthHeader("T1")

	var replayed []bool
	client.OnResponse(func(ctx context.Context, req *api.Request, resp *api.Response, err error) (*api.Response, error) {
		replayed = append(replayed, req.Replayed())
		return resp, err
	})

	req, err := client.NewRequest(http.MethodPost, "/history", map[string]int{"exercise_id": 3}, nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.NoError(t, err)
	_, err = client.Replay(context.Background(), req, "T2")
	require.NoError(t, err)

	assert.Equal(t, []string{`{"exercise_id":3}`, `{"exercise_id":3}`}, bodies)
	assert.Equal(t, []string{"Bearer T1", "Bearer T2"}, auth)
	assert.Equal(t, []bool{false, true}, replayed)
	assert.False(t, req.Replayed())
}

func TestClient_URL(t *testing.T) {
	client := api.NewClient("http://localhost:3333", nil)
	assert.Equal(t, "http://localhost:3333/avatar/me.png", client.URL("/avatar/me.png"))

	prefixed := api.NewClient("https://gym.example.com/api/", nil)
	assert.Equal(t, "https://gym.example.com/api/exercise/thumb/a.png", prefixed.URL("exercise/thumb/a.png"))
}
