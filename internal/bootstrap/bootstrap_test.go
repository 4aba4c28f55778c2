package bootstrap_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-autograder/internal/bootstrap"
	"github.com/noah-isme/gema-autograder/internal/config"
	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

type fixedGrader struct{}

func (fixedGrader) Grade(context.Context, ai.SubmissionContent) (ai.GradingResult, error) {
	return ai.GradingResult{
		Score:     81,
		Summary:   "Clear explanation.",
		Feedback:  "Label the diagram.",
		Breakdown: ai.GradingBreakdown{Understanding: 85, Logic: 80, Completeness: 78},
	}, nil
}

func baseConfig() config.Config {
	return config.Config{
		AppName:          "GEMA AutoGrader",
		GradingItemDelay: 0,
		GradingTimeout:   5 * time.Second,
		HistoryRedisKey:  "grading_history",
		EventsChannel:    "gema:grading",
	}
}

func gradeOne(t *testing.T, core *bootstrap.Core) {
	t.Helper()
	core.Queue.Enqueue(context.Background(), []models.SubmissionFile{
		models.NewMemoryFile("Siti_Aminah_20240077.txt", "text/plain", []byte("Rainfall forms when water vapour condenses.")),
	})
	done, started := core.Queue.StartOrResume(context.Background())
	require.True(t, started)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not finish")
	}
}

func TestNewCorePersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]func(cfg *config.Config){
		config.HistoryDriverFile: func(cfg *config.Config) {
			cfg.HistoryPath = filepath.Join(dir, "history.json")
		},
		config.HistoryDriverSQLite: func(cfg *config.Config) {
			cfg.HistorySQLite = filepath.Join(dir, "history.db")
		},
	}

	for driver, configure := range cases {
		t.Run(driver, func(t *testing.T) {
			cfg := baseConfig()
			cfg.HistoryDriver = driver
			configure(&cfg)

			core, err := bootstrap.NewCore(context.Background(), cfg, zerolog.Nop(), bootstrap.Options{Grader: fixedGrader{}})
			require.NoError(t, err)
			gradeOne(t, core)
			require.NoError(t, core.Close())

			reopened, err := bootstrap.NewCore(context.Background(), cfg, zerolog.Nop(), bootstrap.Options{Grader: fixedGrader{}})
			require.NoError(t, err)
			t.Cleanup(func() { _ = reopened.Close() })

			entries := reopened.History.List()
			require.Len(t, entries, 1)
			require.Equal(t, "20240077", entries[0].StudentID)
			require.Equal(t, "Siti Aminah", entries[0].StudentName)
			require.Equal(t, float64(81), entries[0].Score)
		})
	}
}

func TestNewCoreRedisHistoryAndBroker(t *testing.T) {
	srv := miniredis.RunT(t)

	cfg := baseConfig()
	cfg.HistoryDriver = config.HistoryDriverRedis
	cfg.RedisURL = "redis://" + srv.Addr() + "/0"

	core, err := bootstrap.NewCore(context.Background(), cfg, zerolog.Nop(), bootstrap.Options{WithBroker: true, Grader: fixedGrader{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })

	require.Eventually(t, func() bool {
		return srv.PubSubNumSub("gema:grading:queue")["gema:grading:queue"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	gradeOne(t, core)

	require.True(t, srv.Exists(cfg.HistoryRedisKey))
	require.Len(t, core.History.List(), 1)
}

func TestNewCoreRejectsUnknownProvider(t *testing.T) {
	cfg := baseConfig()
	cfg.HistoryDriver = config.HistoryDriverFile
	cfg.HistoryPath = filepath.Join(t.TempDir(), "history.json")
	cfg.AIProvider = "watson"
	cfg.AIAPIKey = "key"

	_, err := bootstrap.NewCore(context.Background(), cfg, zerolog.Nop(), bootstrap.Options{})
	require.Error(t, err)
}
