package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/onchainlabs/logindexer/internal/domain"
	"github.com/onchainlabs/logindexer/internal/infrastructure/postgres"
)

type fakeStatusStore struct {
	cursors         []postgres.CursorRow
	pendingOutbox   int64
	pendingCommands int64
	inboxCounts     map[domain.InboxStatus]int64
	err             error
}

func (f *fakeStatusStore) AllCursors(ctx context.Context) ([]postgres.CursorRow, error) {
	return f.cursors, f.err
}

func (f *fakeStatusStore) PendingOutboxCount(ctx context.Context) (int64, error) {
	return f.pendingOutbox, f.err
}

func (f *fakeStatusStore) PendingCommandCount(ctx context.Context) (int64, error) {
	return f.pendingCommands, f.err
}

func (f *fakeStatusStore) InboxStatusCounts(ctx context.Context, handlerKind string) (map[domain.InboxStatus]int64, error) {
	return f.inboxCounts, f.err
}

func TestHealthzReportsOK(t *testing.T) {
	router := NewRouter(&fakeStatusStore{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestStatusReportsCursorsAndCounts(t *testing.T) {
	store := &fakeStatusStore{
		cursors:         []postgres.CursorRow{{ID: "default:shard-0", LastProcessedBlock: 42}},
		pendingOutbox:   3,
		pendingCommands: 1,
		inboxCounts:     map[domain.InboxStatus]int64{domain.InboxAck: 5, domain.InboxDLQ: 2},
	}
	router := NewRouter(store, fakeHeadClient{block: 99}, []string{"examples.erc20projector"})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Head)
	require.Equal(t, uint64(99), *body.Head)
	require.Equal(t, uint64(42), body.Cursors[0].LastProcessedBlock)
	require.Equal(t, int64(3), body.PendingOutbox)
	require.Equal(t, int64(1), body.PendingCommands)
	require.Equal(t, int64(5), body.InboxByHandler["examples.erc20projector"]["ACK"])
}

func TestStatusSurfacesStoreErrorAs500(t *testing.T) {
	store := &fakeStatusStore{err: context.DeadlineExceeded}
	router := NewRouter(store, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeHeadClient struct {
	block uint64
	err   error
}

func (f fakeHeadClient) GetHeadBlock(ctx context.Context) (uint64, error) {
	return f.block, f.err
}

func TestStatusToleratesUnreachableHead(t *testing.T) {
	store := &fakeStatusStore{}
	router := NewRouter(store, fakeHeadClient{err: context.DeadlineExceeded}, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Nil(t, body.Head)
	require.NotEmpty(t, body.HeadError)
}
