package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
// Global rows use unique keys so the suite can run against a shared database.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]

	// Sessions
	sess, err := s.Sessions().Create(ctx, "friend")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got, err := s.Sessions().Get(ctx, sess.SessionID); err != nil || got.PersonaID != "friend" {
		t.Fatalf("GetSession: got=%v err=%v", got, err)
	}
	if _, err := s.Sessions().Get(ctx, "missing-"+suffix); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetSession missing: want ErrNotFound, got %v", err)
	}
	if _, err := s.Sessions().Create(ctx, " "); !model.IsValidationError(err) {
		t.Fatalf("CreateSession blank persona: want validation error, got %v", err)
	}
	if lst, err := s.Sessions().List(ctx, 10); err != nil || len(lst) == 0 {
		t.Fatalf("ListSessions: n=%d err=%v", len(lst), err)
	}

	// Messages
	for i, c := range []string{"one", "two", "three", "four"} {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		if _, err := s.Messages().Append(ctx, sess.SessionID, role, c); err != nil {
			t.Fatalf("AppendMessage %s: %v", c, err)
		}
	}
	if _, err := s.Messages().Append(ctx, "missing-"+suffix, model.RoleUser, "x"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Append to unknown session: want ErrNotFound, got %v", err)
	}
	if _, err := s.Messages().Append(ctx, sess.SessionID, model.RoleSystem, "x"); !model.IsValidationError(err) {
		t.Fatalf("Append system role: want validation error, got %v", err)
	}
	if n, err := s.Messages().Count(ctx, sess.SessionID); err != nil || n != 4 {
		t.Fatalf("CountMessages: n=%d err=%v", n, err)
	}
	first, err := s.Messages().List(ctx, sess.SessionID, 2)
	if err != nil || len(first) != 2 || first[0].Content != "one" || first[1].Content != "two" {
		t.Fatalf("ListMessages: got=%v err=%v", contents(first), err)
	}
	recent, err := s.Messages().Recent(ctx, sess.SessionID, 3)
	if err != nil || len(recent) != 3 {
		t.Fatalf("RecentMessages: n=%d err=%v", len(recent), err)
	}
	if got := strings.Join(contents(recent), ","); got != "two,three,four" {
		t.Fatalf("RecentMessages order: got %s", got)
	}

	// Memory items: one live row per slot, global rows never carry a session.
	key := "fav_color_" + suffix
	if _, err := s.MemoryItems().Upsert(ctx, &model.MemoryItem{Scope: model.ScopeGlobal, SessionID: &sess.SessionID, Key: key, Value: "blue", Confidence: 0.9}); !model.IsValidationError(err) {
		t.Fatalf("global memory with session: want validation error, got %v", err)
	}
	m1, err := s.MemoryItems().Upsert(ctx, &model.MemoryItem{Scope: model.ScopeGlobal, SessionID: model.StringPtr(" "), Key: key, Value: "blue", Confidence: 0.9})
	if err != nil {
		t.Fatalf("UpsertMemory: %v", err)
	}
	m2, err := s.MemoryItems().Upsert(ctx, &model.MemoryItem{Scope: model.ScopeGlobal, Key: key, Value: "green", Confidence: 0.95})
	if err != nil {
		t.Fatalf("UpsertMemory again: %v", err)
	}
	if m1.ItemID != m2.ItemID {
		t.Fatalf("UpsertMemory: want same item id, got %s and %s", m1.ItemID, m2.ItemID)
	}
	globals, err := s.MemoryItems().List(ctx, model.ScopeGlobal, "", 500)
	if err != nil {
		t.Fatalf("ListMemory global: %v", err)
	}
	var found int
	for _, it := range globals {
		if it.Key == key {
			found++
			if it.Value != "green" || it.SessionID != nil {
				t.Fatalf("global memory: value=%q session=%v", it.Value, it.SessionID)
			}
		}
	}
	if found != 1 {
		t.Fatalf("global memory rows for key: want 1, got %d", found)
	}

	if _, err := s.MemoryItems().Upsert(ctx, &model.MemoryItem{Scope: model.ScopeSession, Key: "goal", Value: "x", Confidence: 0.9}); !model.IsValidationError(err) {
		t.Fatalf("session memory without session: want validation error, got %v", err)
	}
	si, err := s.MemoryItems().Upsert(ctx, &model.MemoryItem{Scope: model.ScopeSession, SessionID: &sess.SessionID, Key: "goal", Value: "run 5k", Confidence: 0.85})
	if err != nil {
		t.Fatalf("UpsertMemory session: %v", err)
	}
	if _, err := s.MemoryItems().Upsert(ctx, &model.MemoryItem{Scope: model.ScopeSession, SessionID: &sess.SessionID, Key: "goal", Value: "run 10k", Confidence: 0.9}); err != nil {
		t.Fatalf("UpsertMemory session again: %v", err)
	}
	sessItems, err := s.MemoryItems().List(ctx, model.ScopeSession, sess.SessionID, 10)
	if err != nil || len(sessItems) != 1 || sessItems[0].Value != "run 10k" {
		t.Fatalf("ListMemory session: n=%d err=%v", len(sessItems), err)
	}
	if _, err := s.MemoryItems().List(ctx, model.ScopeSession, "", 10); !model.IsValidationError(err) {
		t.Fatalf("ListMemory session without id: want validation error, got %v", err)
	}
	if err := s.MemoryItems().Delete(ctx, si.ItemID); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if err := s.MemoryItems().Delete(ctx, si.ItemID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("DeleteMemory twice: want ErrNotFound, got %v", err)
	}
	_ = s.MemoryItems().Delete(ctx, m2.ItemID)

	// Summaries
	if _, err := s.Summaries().Get(ctx, sess.SessionID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetSummary before write: want ErrNotFound, got %v", err)
	}
	if _, err := s.Summaries().Upsert(ctx, &model.SessionSummary{SessionID: sess.SessionID, Summary: "first"}); err != nil {
		t.Fatalf("UpsertSummary: %v", err)
	}
	loops := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		loops = append(loops, "loop")
	}
	if _, err := s.Summaries().Upsert(ctx, &model.SessionSummary{SessionID: sess.SessionID, Summary: "second", OpenLoops: loops}); err != nil {
		t.Fatalf("UpsertSummary again: %v", err)
	}
	sum, err := s.Summaries().Get(ctx, sess.SessionID)
	if err != nil || sum.Summary != "second" || len(sum.OpenLoops) != model.MaxOpenLoops {
		t.Fatalf("GetSummary: got=%v err=%v", sum, err)
	}

	// Alerts
	base := time.Now().UTC().Truncate(time.Second)
	late, err := s.Alerts().Create(ctx, &model.Alert{Scope: model.ScopeSession, SessionID: &sess.SessionID, Title: "late", DueAt: base.Add(-time.Minute), Confidence: 0.8})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	early, err := s.Alerts().Create(ctx, &model.Alert{Scope: model.ScopeSession, SessionID: &sess.SessionID, Title: "early", DueAt: base.Add(-time.Hour), Confidence: 0.8})
	if err != nil {
		t.Fatalf("CreateAlert early: %v", err)
	}
	if _, err := s.Alerts().Create(ctx, &model.Alert{Scope: model.ScopeSession, SessionID: &sess.SessionID, Title: "future", DueAt: base.Add(time.Hour), Confidence: 0.8}); err != nil {
		t.Fatalf("CreateAlert future: %v", err)
	}
	if late.Status != model.AlertActive {
		t.Fatalf("CreateAlert status: %s", late.Status)
	}
	due, err := s.Alerts().Due(ctx, sess.SessionID, base, 10)
	if err != nil || len(due) != 2 || due[0].AlertID != early.AlertID || due[1].AlertID != late.AlertID {
		t.Fatalf("DueAlerts: n=%d err=%v", len(due), err)
	}
	if lst, err := s.Alerts().List(ctx, model.AlertFilter{SessionID: sess.SessionID}); err != nil || len(lst) != 3 {
		t.Fatalf("ListAlerts: n=%d err=%v", len(lst), err)
	}

	done, err := s.Alerts().UpdateStatus(ctx, early.AlertID, model.AlertDone)
	if err != nil || done.Status != model.AlertDone {
		t.Fatalf("UpdateStatus done: got=%v err=%v", done, err)
	}
	if _, err := s.Alerts().UpdateStatus(ctx, early.AlertID, model.AlertCancelled); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("UpdateStatus terminal: want ErrConflict, got %v", err)
	}
	if _, err := s.Alerts().UpdateStatus(ctx, late.AlertID, model.AlertActive); !model.IsValidationError(err) {
		t.Fatalf("UpdateStatus to active: want validation error, got %v", err)
	}
	if _, err := s.Alerts().UpdateStatus(ctx, "missing-"+suffix, model.AlertDone); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("UpdateStatus missing: want ErrNotFound, got %v", err)
	}
	if due, err := s.Alerts().Due(ctx, sess.SessionID, base, 10); err != nil || len(due) != 1 {
		t.Fatalf("DueAlerts after done: n=%d err=%v", len(due), err)
	}
	if lst, err := s.Alerts().List(ctx, model.AlertFilter{SessionID: sess.SessionID, Status: model.AlertDone}); err != nil || len(lst) != 1 {
		t.Fatalf("ListAlerts done: n=%d err=%v", len(lst), err)
	}

	// Tool settings: session override, then global override, then enabled.
	toolA, toolB, toolC := "a_"+suffix, "b_"+suffix, "c_"+suffix
	if _, err := s.ToolSettings().Upsert(ctx, &model.ToolSetting{Scope: model.ScopeGlobal, ToolID: toolA, Enabled: false}); err != nil {
		t.Fatalf("UpsertToolSetting global: %v", err)
	}
	if _, err := s.ToolSettings().Upsert(ctx, &model.ToolSetting{Scope: model.ScopeGlobal, ToolID: toolB, Enabled: false}); err != nil {
		t.Fatalf("UpsertToolSetting global b: %v", err)
	}
	if _, err := s.ToolSettings().Upsert(ctx, &model.ToolSetting{Scope: model.ScopeSession, SessionID: &sess.SessionID, ToolID: toolB, Enabled: false}); err != nil {
		t.Fatalf("UpsertToolSetting session: %v", err)
	}
	if _, err := s.ToolSettings().Upsert(ctx, &model.ToolSetting{Scope: model.ScopeSession, SessionID: &sess.SessionID, ToolID: toolB, Enabled: true}); err != nil {
		t.Fatalf("UpsertToolSetting session again: %v", err)
	}
	eff, err := s.ToolSettings().Effective(ctx, sess.SessionID, []string{toolA, toolB, toolC})
	if err != nil {
		t.Fatalf("EffectiveTools: %v", err)
	}
	if eff[toolA] || !eff[toolB] || !eff[toolC] {
		t.Fatalf("EffectiveTools: got %v", eff)
	}
	sessSettings, err := s.ToolSettings().List(ctx, model.ScopeSession, sess.SessionID)
	if err != nil || len(sessSettings) != 1 || !sessSettings[0].Enabled {
		t.Fatalf("ListToolSettings session: n=%d err=%v", len(sessSettings), err)
	}
	if _, err := s.ToolSettings().List(ctx, model.ScopeSession, ""); !model.IsValidationError(err) {
		t.Fatalf("ListToolSettings without session: want validation error, got %v", err)
	}
}

func contents(msgs []*model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
