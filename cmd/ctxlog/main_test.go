package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/contextlog/internal/http"
	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/pick"
	"github.com/fyrsmithlabs/contextlog/internal/service"
	"github.com/fyrsmithlabs/contextlog/internal/store"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

// Sunday evening, inside the default reflection window.
var now = time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.New(context.Background(), store.Config{Path: store.MemoryPath}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := service.New(st, service.WithClock(timewindow.Fixed(now)), service.WithPicker(pick.First()))
	require.NoError(t, err)
	srv, err := httpserver.NewServer(svc, zap.NewNop(), &httpserver.Config{})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

// execute runs the CLI with fresh flag values and returns its stdout.
func execute(t *testing.T, ts *httptest.Server, args ...string) (string, error) {
	t.Helper()
	serverURL, userID, outputJSON = "", "", false
	logConfidence, logTags, logEmotions = -1, nil, nil
	reflectSave, reflectNotes, outcomeDelta = false, "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append(args, "--server", ts.URL))
	err := rootCmd.Execute()
	return out.String(), err
}

func seedReceipt(t *testing.T, st *store.Store, id string, daysAgo int) {
	t.Helper()
	created := now.AddDate(0, 0, -daysAgo)
	require.NoError(t, st.CreateReceipt(context.Background(), journal.Receipt{
		ID:           id,
		UserID:       "alice",
		Title:        "Took the Berlin offer",
		DecisionType: journal.DecisionCareer,
		Confidence:   journal.Intn(70),
		CreatedAt:    created,
		UpdatedAt:    created,
	}))
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	out, err := execute(t, ts, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, ts.URL)
}

func TestAPICommandsRequireUser(t *testing.T) {
	ts, _ := newTestServer(t)

	_, err := execute(t, ts, "deadzone")
	assert.ErrorContains(t, err, "--user is required")
}

func TestLogReceiptAndMoment(t *testing.T) {
	ts, st := newTestServer(t)

	out, err := execute(t, ts, "log", "receipt", "Took the Berlin offer",
		"--type", journal.DecisionCareer, "--confidence", "140", "--emotion", "hopeful", "--tag", "work", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged receipt ")

	receipts, err := st.ListReceipts(context.Background(), "alice", store.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, 100, *receipts[0].Confidence)
	assert.Equal(t, []string{"hopeful"}, receipts[0].Emotions)

	out, err = execute(t, ts, "log", "moment", "Dinner with Sam", "--category", journal.CategoryPeople, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged moment ")

	_, err = execute(t, ts, "log", "receipt", "   ", "--user", "alice")
	assert.ErrorContains(t, err, "status 400")
}

func TestDeadZone(t *testing.T) {
	ts, _ := newTestServer(t)

	out, err := execute(t, ts, "deadzone", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Window: 14 days")
	assert.Contains(t, out, "FLAG")

	out, err = execute(t, ts, "deadzone", "--user", "alice", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"flags"`)
}

func TestCards(t *testing.T) {
	ts, _ := newTestServer(t)

	out, err := execute(t, ts, "cards", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, string(journal.CardGap))

	_, err = execute(t, ts, "cards", "dismiss", "missing", "--user", "alice")
	assert.ErrorContains(t, err, "record not found")
}

func TestReflect(t *testing.T) {
	ts, _ := newTestServer(t)

	out, err := execute(t, ts, "reflect", "--user", "alice", "--save", "--notes", "quiet week")
	require.NoError(t, err)
	assert.Contains(t, out, "This week: 0 receipts, 0 moments")
	assert.Contains(t, out, "Question: ")
	assert.Contains(t, out, "Saved reflection ")

	out, err = execute(t, ts, "reflect", "--user", "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Saved reflection ("), out)
}

func TestOutcomes(t *testing.T) {
	ts, st := newTestServer(t)

	out, err := execute(t, ts, "outcomes", "due", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing due.")

	seedReceipt(t, st, "r1", 10)
	out, err = execute(t, ts, "outcomes", "due", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Took the Berlin offer (Career, 10 days ago)")

	out, err = execute(t, ts, "outcomes", "record", "r1", "worse", "--delta", "the team changed", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded worse for r1")

	_, err = execute(t, ts, "outcomes", "record", "r1", "better", "--user", "alice")
	assert.ErrorContains(t, err, "status 409")

	out, err = execute(t, ts, "outcomes", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "worse")

	out, err = execute(t, ts, "insights", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "No insights yet")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
