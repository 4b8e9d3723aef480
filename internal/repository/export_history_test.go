package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sitfuturz/newAdminCircle-sub000/internal/config"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/database"
	"github.com/sitfuturz/newAdminCircle-sub000/internal/domain/model"
)

// setupTestDB запускает PostgreSQL в контейнере и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("console_test"),
		postgres.WithUsername("console"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("RC_ENV_FILE", "")
	t.Setenv("RC_DB_HOST", host)
	t.Setenv("RC_DB_PORT", port.Port())
	t.Setenv("RC_DB_NAME", "console_test")
	t.Setenv("RC_DB_USER", "console")
	t.Setenv("RC_DB_PASSWORD", "test-password")
	t.Setenv("RC_DB_SSL_MODE", "disable")
	t.Setenv("RC_BACKEND_URL", "http://localhost:9000")
	t.Setenv("RC_JWT_JWKS_URL", "http://localhost:9000/jwks")
	t.Setenv("RC_SESSION_SECRET", strings.Repeat("s", 32))

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграции: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func newExport(resource, chapter, actor string, startedAt time.Time) *model.ExportRecord {
	return &model.ExportRecord{
		ID:        uuid.New().String(),
		Resource:  resource,
		Format:    "xlsx",
		Actor:     actor,
		Chapter:   chapter,
		Filters:   map[string]string{"status": "pending"},
		Status:    model.ExportRunning,
		StartedAt: startedAt.UTC().Truncate(time.Microsecond),
	}
}

func TestExportHistoryRepository(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewExportHistoryRepository(pool)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := newExport("referrals", "Believers", "ed@example.com", base)
	second := newExport("members", "Achievers", "admin@example.com", base.Add(time.Minute))

	for _, rec := range []*model.ExportRecord{first, second} {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create() вернул ошибку: %v", err)
		}
	}

	t.Run("дубликат", func(t *testing.T) {
		err := repo.Create(ctx, first)
		if !errors.Is(err, ErrConflict) {
			t.Errorf("ожидалась ErrConflict, получена %v", err)
		}
	})

	t.Run("завершение", func(t *testing.T) {
		finished := base.Add(2 * time.Second)
		first.Status = model.ExportCompleted
		first.RowCount = 37
		first.FileName = "referrals_2026-03-01.xlsx"
		first.FinishedAt = &finished
		if err := repo.Finish(ctx, first); err != nil {
			t.Fatalf("Finish() вернул ошибку: %v", err)
		}

		got, err := repo.GetByID(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetByID() вернул ошибку: %v", err)
		}
		if got.Status != model.ExportCompleted || got.RowCount != 37 {
			t.Errorf("ожидался completed/37, получен %s/%d", got.Status, got.RowCount)
		}
		if diff := cmp.Diff(first.Filters, got.Filters); diff != "" {
			t.Errorf("фильтры различаются (-want +got):\n%s", diff)
		}
		if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
			t.Errorf("ожидался finished_at %v, получен %v", finished, got.FinishedAt)
		}
	})

	t.Run("не найдено", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получена %v", err)
		}
		missing := newExport("members", "", "x", base)
		if err := repo.Finish(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Errorf("ожидалась ErrNotFound, получена %v", err)
		}
	})

	t.Run("список", func(t *testing.T) {
		all, err := repo.List(ctx, ExportListFilters{}, 10, 0)
		if err != nil {
			t.Fatalf("List() вернул ошибку: %v", err)
		}
		if len(all) != 2 || all[0].ID != second.ID {
			t.Fatalf("ожидались 2 записи, новая первой, получено %d", len(all))
		}

		byChapter, err := repo.List(ctx, ExportListFilters{Chapter: "Believers"}, 10, 0)
		if err != nil {
			t.Fatalf("List() вернул ошибку: %v", err)
		}
		if len(byChapter) != 1 || byChapter[0].ID != first.ID {
			t.Errorf("ожидалась 1 запись главы Believers, получено %d", len(byChapter))
		}

		count, err := repo.Count(ctx, ExportListFilters{Status: model.ExportRunning})
		if err != nil {
			t.Fatalf("Count() вернул ошибку: %v", err)
		}
		if count != 1 {
			t.Errorf("ожидалась 1 запись running, получено %d", count)
		}

		paged, err := repo.List(ctx, ExportListFilters{}, 1, 1)
		if err != nil {
			t.Fatalf("List() вернул ошибку: %v", err)
		}
		if len(paged) != 1 || paged[0].ID != first.ID {
			t.Errorf("ожидалась вторая запись на offset=1")
		}
	})
}

func TestBuildExportWhere(t *testing.T) {
	tests := []struct {
		name      string
		filters   ExportListFilters
		wantWhere string
		wantArgs  []any
	}{
		{"пусто", ExportListFilters{}, "", nil},
		{
			"глава и ресурс",
			ExportListFilters{Chapter: "Believers", Resource: "referrals"},
			"WHERE chapter = $3 AND resource = $4",
			[]any{"Believers", "referrals"},
		},
		{
			"все поля",
			ExportListFilters{Chapter: "A", Resource: "r", Actor: "u", Status: model.ExportFailed},
			"WHERE chapter = $3 AND resource = $4 AND actor = $5 AND status = $6",
			[]any{"A", "r", "u", "failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildExportWhere(tt.filters, 3)
			if where != tt.wantWhere {
				t.Errorf("ожидалось %q, получено %q", tt.wantWhere, where)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("аргументы различаются (-want +got):\n%s", diff)
			}
		})
	}
}
