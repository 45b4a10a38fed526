package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companionos/companion/internal/llm"
	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
	"github.com/companionos/companion/internal/store"
	"github.com/companionos/companion/internal/store/sqlite"
)

var memoryOn = persona.Persona{ID: "friend", Name: "Friend", MemoryPolicy: persona.MemoryPolicy{Enabled: true, Scope: model.ScopeSession}}

func newStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	st, err := sqlite.New(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	sess, err := st.Sessions().Create(context.Background(), "friend")
	require.NoError(t, err)
	return st, sess.SessionID
}

func appendMessages(t *testing.T, st store.Store, sessionID string, n int) {
	t.Helper()
	cnt, err := st.Messages().Count(context.Background(), sessionID)
	require.NoError(t, err)
	for i := cnt; i < cnt+n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		_, err := st.Messages().Append(context.Background(), sessionID, role, fmt.Sprintf("message %d", i+1))
		require.NoError(t, err)
	}
}

func reply(s string) llm.BackendFunc {
	return func(context.Context, llm.Request) (string, error) { return s, nil }
}

func newPipeline(st store.Store, backend llm.Backend) *Pipeline {
	return New(st, backend, Config{RecentMessages: 10, Threshold: 0.8, Cadence: 6, AllowGlobal: true, Timeout: time.Second}, zerolog.Nop())
}

func TestRun_CadenceOnlyOnMultiples(t *testing.T) {
	st, sid := newStore(t)
	calls := 0
	p := newPipeline(st, llm.BackendFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		return fmt.Sprintf(`{"items":[],"summary_patch":{"summary":"summary %d","open_loops":[]}}`, calls), nil
	}))

	for count := 1; count <= 12; count++ {
		appendMessages(t, st, sid, 1)
		rep := p.Run(context.Background(), sid, memoryOn)
		require.Equal(t, count, rep.MessageCount)

		want := count == 6 || count == 12
		assert.Equal(t, want, rep.ShouldUpdateSummary, "count %d", count)
		assert.Equal(t, want, rep.SummaryUpdated, "count %d", count)

		sum, err := st.Summaries().Get(context.Background(), sid)
		switch {
		case count < 6:
			assert.ErrorIs(t, err, model.ErrNotFound)
		case count < 12:
			require.NoError(t, err)
			assert.Equal(t, "summary 6", sum.Summary, "count %d", count)
		default:
			require.NoError(t, err)
			assert.Equal(t, "summary 12", sum.Summary)
		}
	}
}

func TestRun_EmptySummaryAtCadenceWritesFallback(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 6)
	p := newPipeline(st, reply(`{"items":[],"summary_patch":{"summary":"  ","open_loops":["call mom"]}}`))

	rep := p.Run(context.Background(), sid, memoryOn)
	assert.True(t, rep.SummaryUpdated)
	assert.Equal(t, SourceFallback, rep.SummarySource)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "fallback")

	sum, err := st.Summaries().Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "Session with 6 messages. Recent: user: message 3 | assistant: message 4 | user: message 5", sum.Summary)
	assert.Equal(t, []string{"call mom"}, sum.OpenLoops)
	assert.Equal(t, len(sum.Summary), rep.SummaryLen)
}

func TestRun_ExtractionFailureAtCadenceWritesFallback(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 6)
	p := newPipeline(st, llm.BackendFunc(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("connection refused")
	}))

	rep := p.Run(context.Background(), sid, memoryOn)
	assert.True(t, rep.SummaryUpdated)
	assert.Equal(t, SourceFallback, rep.SummarySource)
	assert.Contains(t, rep.Errors[0], "extraction_failed: connection refused")

	sum, err := st.Summaries().Get(context.Background(), sid)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sum.Summary, "Session with 6 messages. Recent: "))
}

func TestRun_GarbageOffCadenceTouchesNothing(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 3)
	rep := newPipeline(st, reply("sure! here you go")).Run(context.Background(), sid, memoryOn)

	assert.False(t, rep.ShouldUpdateSummary)
	assert.False(t, rep.SummaryUpdated)
	assert.Zero(t, rep.MemoryItemsUpserted)
	_, err := st.Summaries().Get(context.Background(), sid)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRun_UpsertsFactsAboveThreshold(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 4)
	raw := "```json\n" + `{"items":[
		{"scope":"session","key":"goal","value":"run a 10k","confidence":0.8},
		{"scope":"global","key":"name","value":"Sam","confidence":"0.95"},
		{"scope":"session","key":"weak","value":"maybe","confidence":0.79},
		{"scope":"other","key":"bad_scope","value":"x","confidence":1},
		{"scope":"session","key":"Bad Key","value":"x","confidence":1}
	],"summary_patch":{"summary":"ignored off cadence"}}` + "\n```"
	rep := newPipeline(st, reply(raw)).Run(context.Background(), sid, memoryOn)

	assert.Equal(t, 2, rep.MemoryItemsUpserted)
	assert.Empty(t, rep.Errors)

	msgs, err := st.Messages().Recent(context.Background(), sid, 10)
	require.NoError(t, err)
	lastUser := msgs[2].MessageID

	sess, err := st.MemoryItems().List(context.Background(), model.ScopeSession, sid, 10)
	require.NoError(t, err)
	require.Len(t, sess, 1)
	assert.Equal(t, "goal", sess[0].Key)
	assert.Equal(t, sid, model.Deref(sess[0].SessionID))
	assert.Equal(t, lastUser, model.Deref(sess[0].SourceMessageID))

	glob, err := st.MemoryItems().List(context.Background(), model.ScopeGlobal, "", 10)
	require.NoError(t, err)
	require.Len(t, glob, 1)
	assert.Nil(t, glob[0].SessionID)
	assert.Equal(t, "Sam", glob[0].Value)
}

func TestRun_GlobalWritesDisabled(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 2)
	var prompt string
	p := New(st, llm.BackendFunc(func(_ context.Context, req llm.Request) (string, error) {
		prompt = req.Prompt
		return `{"items":[{"scope":"global","key":"name","value":"Sam","confidence":1}]}`, nil
	}), Config{Threshold: 0.8, Cadence: 6, AllowGlobal: false}, zerolog.Nop())

	rep := p.Run(context.Background(), sid, memoryOn)
	assert.Zero(t, rep.MemoryItemsUpserted)
	assert.Contains(t, prompt, `allowed_scopes=["session"]`)
}

func TestRun_MemoryDisabledSkipsFactsButKeepsCadence(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 6)
	p := newPipeline(st, reply(`{"items":[{"scope":"session","key":"goal","value":"x","confidence":1}],"summary_patch":{"summary":"talked"}}`))

	rep := p.Run(context.Background(), sid, persona.Persona{ID: "tutor"})
	assert.Zero(t, rep.MemoryItemsUpserted)
	assert.Equal(t, 1, rep.MemoryItemsSkipped)
	assert.True(t, rep.SummaryUpdated)
	assert.Equal(t, SourceModel, rep.SummarySource)

	items, err := st.MemoryItems().List(context.Background(), model.ScopeSession, sid, 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

// failingMemory makes every memory upsert fail.
type failingMemory struct{ store.MemoryItems }

func (failingMemory) Upsert(context.Context, *model.MemoryItem) (*model.MemoryItem, error) {
	return nil, errors.New("disk full")
}

type failingStore struct{ store.Store }

func (s failingStore) MemoryItems() store.MemoryItems {
	return failingMemory{s.Store.MemoryItems()}
}

func TestRun_StoreFailureAtCadenceWritesEmergencySummary(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 12)
	p := newPipeline(failingStore{st}, reply(`{"items":[{"scope":"session","key":"goal","value":"x","confidence":1}],"summary_patch":{"summary":"good summary","open_loops":["a"]}}`))

	rep := p.Run(context.Background(), sid, memoryOn)
	assert.True(t, rep.SummaryUpdated)
	assert.Equal(t, SourceEmergency, rep.SummarySource)
	require.Len(t, rep.Errors, 2)
	assert.Contains(t, rep.Errors[0], "pipeline_error: ")
	assert.Contains(t, rep.Errors[0], "disk full")

	sum, err := st.Summaries().Get(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, "Session with 12 messages. Summary temporarily unavailable.", sum.Summary)
	assert.Empty(t, sum.OpenLoops)
}

func TestRun_StoreFailureOffCadenceWritesNothing(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 5)
	p := newPipeline(failingStore{st}, reply(`{"items":[{"scope":"session","key":"goal","value":"x","confidence":1}]}`))

	rep := p.Run(context.Background(), sid, memoryOn)
	assert.False(t, rep.SummaryUpdated)
	require.Len(t, rep.Errors, 1)
	_, err := st.Summaries().Get(context.Background(), sid)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRun_RecoversPanics(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 6)
	p := newPipeline(st, llm.BackendFunc(func(context.Context, llm.Request) (string, error) {
		panic("boom")
	}))

	var rep Report
	require.NotPanics(t, func() { rep = p.Run(context.Background(), sid, memoryOn) })
	assert.Contains(t, rep.Errors[0], "panic: boom")
	assert.Equal(t, SourceEmergency, rep.SummarySource)
}

func TestRun_ExtractionRequest(t *testing.T) {
	st, sid := newStore(t)
	appendMessages(t, st, sid, 12)
	_, err := st.Summaries().Upsert(context.Background(), &model.SessionSummary{SessionID: sid, Summary: "earlier chat", OpenLoops: []string{"pick a date"}})
	require.NoError(t, err)

	var req llm.Request
	p := newPipeline(st, llm.BackendFunc(func(_ context.Context, r llm.Request) (string, error) {
		req = r
		return `{}`, nil
	}))
	p.Run(context.Background(), sid, memoryOn)

	assert.Equal(t, llm.ClassExtract, req.Class)
	assert.Contains(t, req.Prompt, "enabled=true\npersona_scope_preference=session\n")
	assert.Contains(t, req.Prompt, "summary: earlier chat\nopen_loops_json: [\"pick a date\"]")
	assert.Contains(t, req.Prompt, "RECENT CONVERSATION (last 10 messages):\nUSER: message 3\nASSISTANT: message 4")
	assert.NotContains(t, req.Prompt, "message 2\n")
	assert.Contains(t, req.Prompt, "OUTPUT JSON SCHEMA:")
}

func TestFallbackSummary(t *testing.T) {
	msg := func(role model.Role, content string) *model.Message {
		return &model.Message{Role: role, Content: content}
	}
	assert.Equal(t, "Session with 0 messages.", FallbackSummary(nil, 0))

	long := strings.Repeat("x", 100)
	got := FallbackSummary([]*model.Message{
		msg(model.RoleUser, "ignored, outside tail"),
		msg(model.RoleUser, "  hello\nthere  "),
		msg(model.RoleAssistant, "   "),
		msg(model.RoleUser, long),
		msg(model.RoleAssistant, "fourth"),
	}, 5)
	assert.Equal(t, "Session with 5 messages. Recent: user: hello there | user: "+strings.Repeat("x", 80)+" | assistant: fourth", got)
}

func TestCadenceHelpers(t *testing.T) {
	assert.True(t, ShouldUpdate(6, 6))
	assert.True(t, ShouldUpdate(0, 6))
	assert.False(t, ShouldUpdate(7, 6))
	assert.Equal(t, 12, NextUpdateAt(6, 6))
	assert.Equal(t, 12, NextUpdateAt(11, 6))
	assert.Equal(t, 6, NextUpdateAt(0, 6))
	assert.Equal(t, "Session with 6 messages. Summary temporarily unavailable.", EmergencySummary(6))
}
