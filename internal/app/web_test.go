// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/aoa_locator/internal/aoa"
	"github.com/relabs-tech/aoa_locator/internal/geometry"
	"github.com/relabs-tech/aoa_locator/internal/tracker"
)

var testBase = aoa.BaseStation{
	Position:    geometry.Vec3{Z: 1.4},
	Orientation: geometry.Orientation{XDeg: 90, ZDeg: 180},
}

func reportPayload(t *testing.T, tag string, x, y float64) []byte {
	t.Helper()
	p := aoa.Position{Point: geometry.Vec3{X: x, Y: y}, HorizontalDistance: geometry.Vec3{X: x, Y: y}.NormXY()}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err := json.Marshal(aoa.NewReport(tag, aoa.Reading{AzimuthDeg: -30}, p, at))
	require.NoError(t, err)
	return b
}

func TestPositionsEndpoint(t *testing.T) {
	srv := newPositionServer(testBase)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/positions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, srv.handleReport("aoa/position/A", reportPayload(t, "A", -2, 1)))
	require.NoError(t, srv.handleReport("aoa/position/B", reportPayload(t, "", 3, 4)))

	resp, err = http.Get(ts.URL + "/api/positions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got map[string]tracker.TrackedTag
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, -2.0, got["A"].Position.Point.X)
	assert.Equal(t, "B", got["B"].TagID, "tag taken from topic when payload omits it")
	assert.Equal(t, 5.0, got["B"].Position.HorizontalDistance)
}

func TestBaseEndpoint(t *testing.T) {
	ts := httptest.NewServer(newPositionServer(testBase).routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/base")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got aoa.BaseStation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, testBase, got)
}

func TestHandleReportRejectsGarbage(t *testing.T) {
	srv := newPositionServer(testBase)
	assert.Error(t, srv.handleReport("aoa/position/A", []byte("not json")))
	assert.Equal(t, 0, srv.tracker.Len())
}

func TestWebsocketFeed(t *testing.T) {
	srv := newPositionServer(testBase)
	require.NoError(t, srv.handleReport("aoa/position/A", reportPayload(t, "A", -1, 0)))

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/positions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() positionsMessage {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg positionsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "snapshot", first.Type)
	assert.Len(t, first.Positions, 1)

	require.Eventually(t, func() bool { return srv.hub.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, srv.handleReport("aoa/position/B", reportPayload(t, "B", 2, 2)))

	second := read()
	assert.Len(t, second.Positions, 2)
	assert.Equal(t, 2.0, second.Positions["B"].Position.Point.Y)

	conn.Close()
	assert.Eventually(t, func() bool { return srv.hub.count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEmptyReportForgetsTag(t *testing.T) {
	srv := newPositionServer(testBase)
	require.NoError(t, srv.handleReport("aoa/position/A", reportPayload(t, "A", -2, 1)))
	require.NoError(t, srv.handleReport("aoa/position/B", reportPayload(t, "B", 3, 4)))

	require.NoError(t, srv.handleReport("aoa/position/A", nil))
	assert.Equal(t, []string{"B"}, srv.tracker.IDs())

	// Clearing an unknown tag is harmless.
	require.NoError(t, srv.handleReport("aoa/position/zzz", []byte{}))
	assert.Equal(t, 1, srv.tracker.Len())
}

func TestWebPruneDropsStaleTags(t *testing.T) {
	srv := newPositionServer(testBase)
	require.NoError(t, srv.handleReport("aoa/position/old", reportPayload(t, "old", 1, 1)))
	srv.tracker.Update("fresh", aoa.Position{}, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC))

	ids, err := srv.prune(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)
	assert.Equal(t, []string{"fresh"}, srv.tracker.IDs())

	ids, err = srv.prune(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWebPruneLoopStops(t *testing.T) {
	srv := newPositionServer(testBase)
	require.NoError(t, srv.handleReport("aoa/position/old", reportPayload(t, "old", 1, 1)))

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		srv.pruneLoop(time.Minute, time.Millisecond, done)
		close(finished)
	}()

	assert.Eventually(t, func() bool { return srv.tracker.Len() == 0 }, time.Second, time.Millisecond)
	close(done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("pruneLoop did not stop")
	}
}
