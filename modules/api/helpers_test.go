package api_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/store"
	"github.com/guarzo/gymapi/internal/apitest"
	"github.com/guarzo/gymapi/modules/api"
)

type mockHttpClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHttpClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}
func (m *mockHttpClient) CloseIdleConnections() {}

type mockRefresher struct {
	calls       int32
	refreshFunc func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

func (m *mockRefresher) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.refreshFunc(ctx, refreshToken)
}

type mockStore struct {
	*store.Memory
	saveFunc func(ctx context.Context, token *oauth2.Token) error
}

func (m *mockStore) Save(ctx context.Context, token *oauth2.Token) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, token)
	}
	return m.Memory.Save(ctx, token)
}

type countingTerminator struct {
	calls int32
}

func (c *countingTerminator) SignOut(context.Context) error {
	atomic.AddInt32(&c.calls, 1)
	return nil
}

func (c *countingTerminator) Calls() int {
	return int(atomic.LoadInt32(&c.calls))
}

// fixture wires a client and coordinator to a fake server whose user holds
// an expired access token T1 and refresh token R1.
type fixture struct {
	server     *apitest.Server
	client     *api.Client
	store      *store.Memory
	terminator *countingTerminator
	coord      *api.RefreshCoordinator
}

func newFixture(t *testing.T, opts ...api.CoordinatorOption) *fixture {
	t.Helper()

	server := apitest.NewServer(t)
	user := server.AddUser("Ana", "ana@example.com", "123456")
	server.Issue(user.ID, "T1", "R1")
	server.Expire("T1")

	httpClient := common.NewHttpClient("gymapi-test", &http.Client{}, 5*time.Second)
	client := api.NewClient(server.URL, httpClient)
	client.SetDefaultAuthHeader("T1")

	creds := store.NewMemory()
	if err := creds.Save(context.Background(), common.NewToken("T1", "R1")); err != nil {
		t.Fatal(err)
	}

	terminator := &countingTerminator{}
	coord := api.NewRefreshCoordinator(client, api.NewRefresher(server.URL, httpClient), creds, terminator, opts...)
	t.Cleanup(coord.Attach())

	return &fixture{
		server:     server,
		client:     client,
		store:      creds,
		terminator: terminator,
		coord:      coord,
	}
}
