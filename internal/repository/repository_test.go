package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/domain"
	"github.com/kursadbilgin/birthday-reminder/internal/infra/database"
	"github.com/kursadbilgin/birthday-reminder/internal/infra/database/migrations"
	"github.com/kursadbilgin/birthday-reminder/internal/repository"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDatabase(database.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := migrations.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, repos repository.Repositories, email string) *domain.User {
	t.Helper()

	user := &domain.User{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Birthday:  time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC),
		Timezone:  "Asia/Jakarta",
	}
	if err := repos.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected user id to be assigned")
	}
	return user
}

func TestUserRepo_CreateGetUpdateDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := repository.NewGormRepositories(newTestDB(t))
	user := createTestUser(t, repos, "ada@example.com")

	got, err := repos.Users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Email != "ada@example.com" || got.Timezone != "Asia/Jakarta" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if !got.Birthday.Equal(user.Birthday) {
		t.Fatalf("expected birthday %s, got %s", user.Birthday, got.Birthday)
	}

	newTZ := "America/New_York"
	updated, err := repos.Users.Update(ctx, user.ID, domain.UserPatch{Timezone: &newTZ})
	if err != nil {
		t.Fatalf("update user: %v", err)
	}
	if !updated {
		t.Fatal("expected update to report a matched row")
	}

	got, err = repos.Users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Timezone != newTZ || got.FirstName != "Ada" {
		t.Fatalf("patch applied incorrectly: %+v", got)
	}

	updated, err = repos.Users.Update(ctx, user.ID+100, domain.UserPatch{Timezone: &newTZ})
	if err != nil {
		t.Fatalf("update missing user: %v", err)
	}
	if updated {
		t.Fatal("expected update of missing user to report false")
	}

	if err := repos.Users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if _, err := repos.Users.GetByID(ctx, user.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repos.Users.Delete(ctx, user.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestUserRepo_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := repository.NewGormRepositories(newTestDB(t))
	first := createTestUser(t, repos, "a@example.com")
	second := createTestUser(t, repos, "b@example.com")

	users, err := repos.Users.List(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 || users[0].ID != first.ID || users[1].ID != second.ID {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestNotificationRepo_ActiveUniquePerUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := repository.NewGormRepositories(newTestDB(t))
	user := createTestUser(t, repos, "ada@example.com")

	scheduledAt := time.Date(2030, time.June, 15, 2, 0, 0, 0, time.UTC)
	n := domain.NewBirthdayNotification(user.ID, scheduledAt)
	if err := repos.Notifications.Create(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	dup := domain.NewBirthdayNotification(user.ID, scheduledAt.AddDate(1, 0, 0))
	if err := repos.Notifications.Create(ctx, dup); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for second active notification, got %v", err)
	}

	if err := repos.Notifications.UpdateStatus(ctx, n.ID, domain.StatusSent); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repos.Notifications.Create(ctx, dup); err != nil {
		t.Fatalf("expected next notification after sent, got %v", err)
	}

	active, err := repos.Notifications.GetActiveByUserID(ctx, user.ID, domain.TypeBirthday)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.ID != dup.ID {
		t.Fatalf("expected active notification %d, got %d", dup.ID, active.ID)
	}
}

func TestNotificationRepo_ListUnsentSince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := repository.NewGormRepositories(newTestDB(t))
	now := time.Date(2030, time.June, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		email       string
		scheduledAt time.Time
		status      domain.Status
		want        bool
	}{
		{email: "recent@example.com", scheduledAt: now.Add(-2 * time.Hour), status: domain.StatusPending, want: true},
		{email: "failed@example.com", scheduledAt: now.Add(-23 * time.Hour), status: domain.StatusFailed, want: true},
		{email: "future@example.com", scheduledAt: now.Add(48 * time.Hour), status: domain.StatusPending, want: true},
		{email: "stale@example.com", scheduledAt: now.Add(-25 * time.Hour), status: domain.StatusPending, want: false},
		{email: "sent@example.com", scheduledAt: now.Add(-1 * time.Hour), status: domain.StatusSent, want: false},
	}

	want := make(map[int64]bool)
	for _, tc := range cases {
		user := createTestUser(t, repos, tc.email)
		n := domain.NewBirthdayNotification(user.ID, tc.scheduledAt)
		n.Status = tc.status
		if err := repos.Notifications.Create(ctx, n); err != nil {
			t.Fatalf("create notification for %s: %v", tc.email, err)
		}
		if tc.want {
			want[n.ID] = true
		}
	}

	got, err := repos.Notifications.ListUnsentSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list unsent: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d notifications, got %d: %+v", len(want), len(got), got)
	}
	for _, n := range got {
		if !want[n.ID] {
			t.Fatalf("unexpected notification %+v", n)
		}
	}
}

func TestNotificationRepo_ListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := repository.NewGormRepositories(newTestDB(t))
	scheduledAt := time.Date(2030, time.June, 15, 2, 0, 0, 0, time.UTC)

	statuses := []domain.Status{domain.StatusPending, domain.StatusSent, domain.StatusFailed}
	byStatus := make(map[domain.Status]int64)
	for i, status := range statuses {
		user := createTestUser(t, repos, fmt.Sprintf("list-%d@example.com", i))
		n := domain.NewBirthdayNotification(user.ID, scheduledAt)
		n.Status = status
		if err := repos.Notifications.Create(ctx, n); err != nil {
			t.Fatalf("create notification: %v", err)
		}
		byStatus[status] = n.ID
	}

	sent := domain.StatusSent
	birthday := domain.TypeBirthday
	tests := []struct {
		name    string
		params  repository.ListParams
		wantIDs []int64
	}{
		{name: "no filter", params: repository.ListParams{}, wantIDs: []int64{byStatus[domain.StatusPending], byStatus[domain.StatusSent], byStatus[domain.StatusFailed]}},
		{name: "status", params: repository.ListParams{Status: &sent}, wantIDs: []int64{byStatus[domain.StatusSent]}},
		{name: "status and type", params: repository.ListParams{Status: &sent, Type: &birthday}, wantIDs: []int64{byStatus[domain.StatusSent]}},
	}

	for _, tt := range tests {
		got, err := repos.Notifications.List(ctx, tt.params)
		if err != nil {
			t.Fatalf("%s: list: %v", tt.name, err)
		}
		if len(got) != len(tt.wantIDs) {
			t.Fatalf("%s: expected %d notifications, got %+v", tt.name, len(tt.wantIDs), got)
		}
		for i, n := range got {
			if n.ID != tt.wantIDs[i] {
				t.Fatalf("%s: position %d: id %d, want %d", tt.name, i, n.ID, tt.wantIDs[i])
			}
		}
	}
}

func TestNotificationRepo_Reschedule(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := repository.NewGormRepositories(newTestDB(t))
	user := createTestUser(t, repos, "ada@example.com")

	n := domain.NewBirthdayNotification(user.ID, time.Date(2030, time.June, 15, 2, 0, 0, 0, time.UTC))
	if err := repos.Notifications.Create(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if err := repos.Notifications.UpdateStatus(ctx, n.ID, domain.StatusFailed); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	next := time.Date(2030, time.June, 15, 13, 0, 0, 0, time.UTC)
	if err := repos.Notifications.Reschedule(ctx, n.ID, next); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	got, err := repos.Notifications.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if got.Status != domain.StatusPending || !got.ScheduledAt.Equal(next) {
		t.Fatalf("unexpected notification after reschedule: %+v", got)
	}

	if err := repos.Notifications.Reschedule(ctx, n.ID+100, next); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotificationRepo_DeleteByUserID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := repository.NewGormRepositories(newTestDB(t))
	user := createTestUser(t, repos, "ada@example.com")

	n := domain.NewBirthdayNotification(user.ID, time.Date(2030, time.June, 15, 2, 0, 0, 0, time.UTC))
	if err := repos.Notifications.Create(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if err := repos.Attempts.Create(ctx, &domain.DeliveryAttempt{
		ID:             "3f0c2a9e-7d42-4c1e-9a55-2b8f1f0e6c11",
		NotificationID: n.ID,
		AttemptNumber:  1,
	}); err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	ids, err := repos.Notifications.ListIDsByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != n.ID {
		t.Fatalf("unexpected ids: %v", ids)
	}

	deleted, err := repos.Notifications.DeleteByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("delete notifications: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted notification, got %d", deleted)
	}

	attempts, err := repos.Attempts.ListByNotificationID(ctx, n.ID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("expected attempts to cascade, got %d", len(attempts))
	}
}

func TestGormTxManager_RollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := newTestDB(t)
	txManager := repository.NewGormTxManager(db)
	repos := repository.NewGormRepositories(db)

	errBoom := errors.New("boom")
	var createdID int64
	err := txManager.WithinTransaction(ctx, func(tx repository.Repositories) error {
		user := &domain.User{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
			Birthday:  time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC),
			Timezone:  "UTC",
		}
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
		createdID = user.ID
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := repos.Users.GetByID(ctx, createdID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rolled back user to be absent, got %v", err)
	}
}

func TestNotificationRepo_CreateRejectsInvalid(t *testing.T) {
	t.Parallel()

	repos := repository.NewGormRepositories(newTestDB(t))

	invalid := domain.NewBirthdayNotification(0, time.Date(2030, time.June, 15, 9, 0, 0, 0, time.UTC))
	if err := repos.Notifications.Create(context.Background(), invalid); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := repos.Notifications.Create(context.Background(), nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for nil notification, got %v", err)
	}
}
