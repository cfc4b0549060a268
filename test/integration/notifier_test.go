//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func hookBody(taskID, userID int64, title string, deadline time.Time, channels []string, emailTo string) []byte {
	chs := `"` + strings.Join(channels, `","`) + `"`
	if len(channels) == 0 {
		chs = ""
	}
	return []byte(fmt.Sprintf(
		`{"task":{"id":%d,"user_id":%d,"title":%q,"deadline":%q},"channels":[%s],"email_to":%q}`,
		taskID, userID, title, deadline.UTC().Format(time.RFC3339), chs, emailTo))
}

func TestHooks_CreateSchedulesRows(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.HealthURL, 60*time.Second)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	taskID, userID := RandID(), RandID()
	deadline := time.Now().UTC().Add(3 * time.Hour)
	SeedTask(t, db, taskID, userID, "quarterly report", deadline, "open")

	HTTPDoJSON(t, http.MethodPost, cfg.BaseURL+"/v1/hooks/task-created",
		hookBody(taskID, userID, "quarterly report", deadline, []string{"email"}, "it@example.com"), 200)

	rows := ListNotifs(t, db, taskID)
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d: %+v", len(rows), rows)
	}
	types := map[string]NotifRow{}
	for _, r := range rows {
		types[r.Type] = r
		if r.Status != "pending" {
			t.Fatalf("row %d not pending: %+v", r.ID, r)
		}
	}
	rem, ok := types["reminder"]
	if !ok {
		t.Fatalf("no reminder row: %+v", rows)
	}
	if d := deadline.Add(-time.Hour).Sub(rem.ScheduledTime); d > time.Second || d < -time.Second {
		t.Fatalf("reminder scheduled at %s, want deadline-1h", rem.ScheduledTime)
	}
	if _, ok := types["overdue"]; !ok {
		t.Fatalf("no overdue row: %+v", rows)
	}
}

func TestEmail_OverdueDelivered(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.HealthURL, 60*time.Second)
	MailhogPurge(t, cfg.MailhogAPI)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	taskID, userID := RandID(), RandID()
	// deadline already passed: the overdue row is due on the next tick
	deadline := time.Now().UTC().Add(-time.Minute)
	SeedTask(t, db, taskID, userID, "pay invoice", deadline, "open")

	HTTPDoJSON(t, http.MethodPost, cfg.BaseURL+"/v1/hooks/task-created",
		hookBody(taskID, userID, "pay invoice", deadline, []string{"email"}, "it@example.com"), 200)

	rep := WaitMailhogCount(t, cfg.MailhogAPI, 1, 90*time.Second)
	if len(rep.Items) == 0 {
		t.Fatalf("no mail")
	}
	subj := ""
	if v, ok := rep.Items[0].Content.Headers["Subject"]; ok && len(v) > 0 {
		subj = v[0]
	}
	if !strings.Contains(subj, "Overdue") || !strings.Contains(subj, "pay invoice") {
		t.Fatalf("bad subject: %q", subj)
	}
	if !strings.Contains(rep.Items[0].Content.Body, "overdue") {
		t.Fatalf("bad body: %q", rep.Items[0].Content.Body)
	}

	row := WaitNotifStatus(t, db, taskID, "overdue", "sent", 90*time.Second)
	if row.LastError != "" {
		t.Fatalf("sent row has last_error %q", row.LastError)
	}
}

type pushEnvelope struct {
	NotificationID int64     `json:"notification_id"`
	TaskID         int64     `json:"task_id"`
	UserID         int64     `json:"user_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	At             time.Time `json:"at"`
}

func TestPush_Delivered(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.HealthURL, 60*time.Second)
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.PushTopic)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	taskID, userID := RandID(), RandID()
	deadline := time.Now().UTC().Add(-time.Minute)
	SeedTask(t, db, taskID, userID, "standup notes", deadline, "open")

	HTTPDoJSON(t, http.MethodPost, cfg.BaseURL+"/v1/hooks/task-created",
		hookBody(taskID, userID, "standup notes", deadline, []string{"push"}, ""), 200)

	group := fmt.Sprintf("it-push-%d", taskID)
	deadlineAt := time.Now().Add(90 * time.Second)
	for time.Now().Before(deadlineAt) {
		env, ok := ReadOneJSON[pushEnvelope](t, cfg.KafkaBootstrap, cfg.PushTopic, group, 20*time.Second)
		if !ok {
			continue
		}
		if env.TaskID != taskID {
			continue // another test's traffic
		}
		if env.UserID != userID || env.Type != "overdue" || env.Title != "standup notes" {
			t.Fatalf("bad envelope: %+v", env)
		}
		WaitNotifStatus(t, db, taskID, "overdue", "sent", 30*time.Second)
		return
	}
	t.Fatalf("push envelope for task %d never arrived", taskID)
}

func TestStatusChange_FreezesAndRevives(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.HealthURL, 60*time.Second)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	taskID, userID := RandID(), RandID()
	deadline := time.Now().UTC().Add(4 * time.Hour)
	SeedTask(t, db, taskID, userID, "call supplier", deadline, "open")

	HTTPDoJSON(t, http.MethodPost, cfg.BaseURL+"/v1/hooks/task-created",
		hookBody(taskID, userID, "call supplier", deadline, []string{"app"}, ""), 200)

	HTTPDoJSON(t, http.MethodPost, cfg.BaseURL+"/v1/hooks/task-status",
		[]byte(fmt.Sprintf(`{"task_id":%d,"status":"done"}`, taskID)), 200)
	for _, r := range ListNotifs(t, db, taskID) {
		if r.Status != "frozen" {
			t.Fatalf("row not frozen after done: %+v", r)
		}
	}

	HTTPDoJSON(t, http.MethodPost, cfg.BaseURL+"/v1/hooks/task-status",
		[]byte(fmt.Sprintf(`{"task_id":%d,"status":"open"}`, taskID)), 200)
	for _, r := range ListNotifs(t, db, taskID) {
		if r.Status != "pending" {
			t.Fatalf("future row not revived after reopen: %+v", r)
		}
	}
}

func TestDelete_Cascades(t *testing.T) {
	cfg := LoadCfg()
	WaitHealthz(t, cfg.HealthURL, 60*time.Second)

	db := DBOpen(t, cfg.DBDSN)
	defer db.Close()

	taskID, userID := RandID(), RandID()
	deadline := time.Now().UTC().Add(2 * time.Hour)
	SeedTask(t, db, taskID, userID, "throwaway", deadline, "open")

	HTTPDoJSON(t, http.MethodPost, cfg.BaseURL+"/v1/hooks/task-created",
		hookBody(taskID, userID, "throwaway", deadline, []string{"app", "push"}, ""), 200)
	if got := ListNotifs(t, db, taskID); len(got) == 0 {
		t.Fatalf("nothing scheduled")
	}

	HTTPDoJSON(t, http.MethodPost, cfg.BaseURL+"/v1/hooks/task-deleted",
		[]byte(fmt.Sprintf(`{"task_id":%d}`, taskID)), 200)
	if got := ListNotifs(t, db, taskID); len(got) != 0 {
		t.Fatalf("rows survived delete: %+v", got)
	}
}
