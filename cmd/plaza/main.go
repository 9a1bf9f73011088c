// Plaza CLI - command line client for the Plaza feed
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/openvillage/plaza/timeline"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("PLAZA_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := timeline.NewClient(baseURL)
	if token := os.Getenv("PLAZA_SESSION"); token != "" {
		client.SessionToken = token
	}

	ctx := context.Background()
	cmd := os.Args[1]

	switch cmd {
	case "watch":
		watch(client)

	case "send":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: plaza send <message>")
			os.Exit(1)
		}
		store := timeline.NewStore(timeline.DefaultRetention)
		tracker := timeline.NewTracker(client, store, timeline.TrackerConfig{})
		receipt, err := tracker.Submit(ctx, os.Args[2])
		exitOnError(err)
		fmt.Printf("Sent: %s\n", receipt.MessageID)
		if receipt.TaskID != "" {
			fmt.Printf("Dispatched task: %s\n", receipt.TaskID)
		}

	case "tasks":
		status := ""
		if len(os.Args) > 2 {
			status = os.Args[2]
		}
		resp, err := client.ListTasks(ctx, status, 50)
		exitOnError(err)
		for _, t := range resp.Tasks {
			fmt.Printf("  #%-4d %-10s %5.1f%%  %s  %s\n", t.Seq, t.Status, t.Progress, t.ID, t.Title)
		}

	case "score":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: plaza score <sender>")
			os.Exit(1)
		}
		record, err := client.Scorecard(ctx, os.Args[2])
		exitOnError(err)
		printJSON(record)

	case "search":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: plaza search <query>")
			os.Exit(1)
		}
		// Search bypasses the reconciliation engine; results come straight
		// from the server's index.
		raws, err := client.Find(ctx, os.Args[2], 20)
		exitOnError(err)
		for _, item := range raws {
			ts := time.UnixMilli(item.Timestamp).Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s: %s\n", ts, item.Sender, item.Message)
		}

	case "register":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: plaza register <name>")
			os.Exit(1)
		}
		resp, err := client.Register(ctx, os.Args[2], "")
		exitOnError(err)
		fmt.Printf("Registered as: %s\n", resp.ID)

	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// watch runs the reconciliation engine against the live feed and renders the
// ordered view on every change.
func watch(client *timeline.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errBanner := color.New(color.FgRed, color.Bold)

	store := timeline.NewStore(timeline.DefaultRetention)
	poller := timeline.NewPoller(client, store, timeline.PollerConfig{
		OnUpdate: func(view []timeline.Event) {
			render(view)
		},
		OnError: func(err error) {
			errBanner.Fprintf(os.Stderr, "feed unavailable: %v (retrying)\n", err)
		},
	})

	poller.Run(ctx)
}

var senderColors = []*color.Color{
	color.New(color.FgCyan),
	color.New(color.FgGreen),
	color.New(color.FgMagenta),
	color.New(color.FgYellow),
	color.New(color.FgBlue),
}

func render(view []timeline.Event) {
	// Clear screen and repaint; the view is bounded so this stays cheap.
	fmt.Print("\033[2J\033[H")

	assigned := make(map[string]*color.Color)
	for _, ev := range view {
		ts := time.UnixMilli(ev.OrderingKey).Format("15:04:05")

		switch {
		case ev.Error:
			color.New(color.FgRed).Printf("[%s] %s: %s\n", ts, ev.Sender, ev.Text)
		case ev.Pending:
			color.New(color.Faint).Printf("[%s] %s\n", ts, ev.Text)
		case ev.Kind == timeline.KindUser:
			color.New(color.FgWhite, color.Bold).Printf("[%s] you: %s", ts, ev.Text)
			if ev.Optimistic {
				color.New(color.Faint).Print(" (sending)")
			}
			fmt.Println()
		default:
			c, ok := assigned[ev.Sender]
			if !ok {
				c = senderColors[len(assigned)%len(senderColors)]
				assigned[ev.Sender] = c
			}
			c.Printf("[%s] %s: ", ts, ev.Sender)
			fmt.Print(ev.Text)
			if ev.Progress != nil {
				color.New(color.Faint).Printf(" (%.0f%%)", *ev.Progress)
			}
			fmt.Println()
		}
	}
}

func usage() {
	fmt.Println(`Plaza CLI - live agent activity feed

Usage: plaza <command> [options]

Commands:
  watch                 Live reconciled view of the feed
  send <message>        Submit a message (dispatches a task)
  tasks [status]        List dispatched tasks
  score <sender>        Show a producer's scorecard
  search <query>        Search the feed
  register <name>       Register as a producer
  health                Check server health

Environment:
  PLAZA_URL      Server URL (default: http://localhost:8080)
  PLAZA_SESSION  Session token for gated servers
  PLAZA_CONFIG   Config directory (default: ~/.plaza)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
