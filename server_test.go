package sheetcalc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := NewServer(NewSheet(), WithLogger(logger))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_EditAndSnapshot(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "snapshot", snap.Type)
	assert.Equal(t, 0, snap.Rows)
	assert.Empty(t, snap.Cells)

	require.NoError(t, conn.WriteJSON(EditRequest{Type: "set", Ref: "A1", Text: "5"}))
	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap.Cells, 1)
	assert.Equal(t, CellState{Ref: "A1", Text: "5", Value: "5"}, snap.Cells[0])

	require.NoError(t, conn.WriteJSON(EditRequest{Type: "set", Ref: "B1", Text: "=A1*3"}))
	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap.Cells, 2)
	assert.Equal(t, CellState{Ref: "B1", Text: "=A1 * 3", Value: "15"}, snap.Cells[1])
	assert.Equal(t, 1, snap.Rows)
	assert.Equal(t, 2, snap.Cols)
}

func TestServer_RejectedEdit(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))

	require.NoError(t, conn.WriteJSON(EditRequest{Type: "set", Ref: "A1", Text: "=A1"}))
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "error", snap.Type)
	assert.Contains(t, snap.Error, "circular")
}

func TestServer_ClearRequest(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts)

	var snap Snapshot
	require.NoError(t, conn.ReadJSON(&snap))

	require.NoError(t, conn.WriteJSON(EditRequest{Type: "set", Ref: "A1", Text: "x"}))
	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap.Cells, 1)

	require.NoError(t, conn.WriteJSON(EditRequest{Type: "clear", Ref: "A1"}))
	snap = Snapshot{} // an empty grid omits "cells"; decode into a fresh value
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Empty(t, snap.Cells)
	assert.Equal(t, 0, snap.Rows)
}

func TestServer_DumpEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)
	require.NoError(t, srv.sheet.SetCell(mustPos(t, "A1"), "5"))
	require.NoError(t, srv.sheet.SetCell(mustPos(t, "B1"), "=A1+1"))

	resp, err := http.Get(ts.URL + "/values")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "5\t6\n", string(body))

	resp, err = http.Get(ts.URL + "/texts")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "5\t=A1 + 1\n", string(body))
}
