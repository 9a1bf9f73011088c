// Plaza agent runner: claims dispatched tasks, executes work in a stamped
// working directory, and reports progress into the feed.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/openvillage/plaza/timeline"
)

// workdirStampLayout matches the timestamp token the server extracts from
// artifact paths.
const workdirStampLayout = "2006-01-02_15-04-05"

// Config is the runner's environment configuration.
type Config struct {
	ServerURL    string        `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	Name         string        `envconfig:"NAME" default:"agent1"`
	Email        string        `envconfig:"EMAIL"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	WorkRoot     string        `envconfig:"WORK_ROOT" default:"./work"`

	// Command, when set, is executed for each claimed task with the task
	// JSON on stdin. Without it the runner only reports lifecycle events.
	Command string `envconfig:"COMMAND"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("PLAZA_AGENT", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("agent", cfg.Name).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := timeline.NewClient(cfg.ServerURL)
	if client.ProducerID == "" {
		resp, err := client.Register(ctx, cfg.Name, cfg.Email)
		if err != nil {
			logger.Fatal().Err(err).Msg("registration failed")
		}
		logger.Info().Str("producer_id", resp.ID).Msg("registered")
	}

	runner := &runner{cfg: cfg, client: client, logger: logger}

	logger.Info().
		Str("server", cfg.ServerURL).
		Dur("interval", cfg.PollInterval).
		Msg("runner started")

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("runner stopped")
			return
		case <-ticker.C:
			if err := runner.tick(ctx); err != nil {
				logger.Warn().Err(err).Msg("tick failed")
			}
		}
	}
}

type runner struct {
	cfg    Config
	client *timeline.Client
	logger zerolog.Logger
}

// tick claims and executes at most one pending task.
func (r *runner) tick(ctx context.Context) error {
	resp, err := r.client.ListTasks(ctx, "pending", 50)
	if err != nil {
		return err
	}
	if len(resp.Tasks) == 0 {
		return nil
	}

	// The listing is newest-first; take the oldest dispatch.
	task := resp.Tasks[len(resp.Tasks)-1]

	claimed, err := r.client.ClaimTask(ctx, task.ID)
	if err != nil {
		// Another runner likely got there first.
		r.logger.Debug().Str("task", task.ID).Err(err).Msg("claim lost")
		return nil
	}

	r.logger.Info().Str("task", claimed.ID).Str("title", claimed.Title).Msg("claimed task")
	return r.execute(ctx, claimed)
}

// execute runs one task inside a stamped working directory and reports the
// outcome. The directory's timestamp token is what gives the reported events
// their authoritative time.
func (r *runner) execute(ctx context.Context, task *timeline.Task) error {
	stamp := time.Now().UTC().Format(workdirStampLayout)
	workdir := filepath.Join(r.cfg.WorkRoot, r.cfg.Name, task.ID, stamp)
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return err
	}

	_, err := r.client.Ingest(ctx, timeline.IngestRequest{
		Message:      fmt.Sprintf("started: %s", task.Title),
		TaskID:       task.ID,
		ArtifactPath: workdir,
	})
	if err != nil {
		return err
	}

	runErr := r.runCommand(ctx, task, workdir)

	if runErr != nil {
		r.logger.Error().Str("task", task.ID).Err(runErr).Msg("task failed")

		if _, err := r.client.UpdateTask(ctx, task.ID, "failed"); err != nil {
			return err
		}
		_, err = r.client.Ingest(ctx, timeline.IngestRequest{
			Message:      fmt.Sprintf("failed: %s: %v", task.Title, runErr),
			TaskID:       task.ID,
			ArtifactPath: workdir,
			Error:        true,
		})
		return err
	}

	r.logger.Info().Str("task", task.ID).Msg("task completed")

	if _, err := r.client.UpdateTask(ctx, task.ID, "completed"); err != nil {
		return err
	}
	progress := 100.0
	_, err = r.client.Ingest(ctx, timeline.IngestRequest{
		Message:         fmt.Sprintf("completed: %s", task.Title),
		TaskID:          task.ID,
		ArtifactPath:    workdir,
		ProgressPercent: &progress,
	})
	return err
}

// runCommand executes the configured worker with the task JSON on stdin,
// capturing output into the working directory.
func (r *runner) runCommand(ctx context.Context, task *timeline.Task, workdir string) error {
	if r.cfg.Command == "" {
		return nil
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return err
	}

	out, err := os.Create(filepath.Join(workdir, "output.log"))
	if err != nil {
		return err
	}
	defer out.Close()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", r.cfg.Command)
	cmd.Dir = workdir
	cmd.Stdin = bytes.NewReader(taskJSON)
	cmd.Stdout = out
	cmd.Stderr = out

	return cmd.Run()
}
