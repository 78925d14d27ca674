// Package main provides the command-line remote for a running player.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	"github.com/osa030/tunedeck/internal/api/httpapi"
	"github.com/osa030/tunedeck/internal/app/notification"
)

var (
	app    = kingpin.New("tunedeck-ctl", "tunedeck player remote")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "API token (or set TUNEDECK_TOKEN env)").Envar("TUNEDECK_TOKEN").String()

	statusCmd = app.Command("status", "Show what is playing").Default()
	queueCmd  = app.Command("queue", "List the queue in insertion order").Alias("ls")

	playCmd      = app.Command("play", "Replace the queue and start playing")
	playTracks   = playCmd.Flag("track", "Track ID, URI or URL (repeatable)").Short('t').Strings()
	playPlaylist = playCmd.Flag("playlist", "Playlist ID, URI or URL").Short('p').String()
	playAlbum    = playCmd.Flag("album", "Album ID, URI or URL").Short('a').String()

	playNextCmd   = app.Command("play-next", "Insert a track after the current one and play it")
	playNextTrack = playNextCmd.Arg("track", "Track ID, URI or URL").Required().String()

	nextCmd     = app.Command("next", "Skip to the next track").Alias("skip")
	previousCmd = app.Command("previous", "Go back to the previous track").Alias("prev")
	pauseCmd    = app.Command("pause", "Pause playback")
	resumeCmd   = app.Command("resume", "Resume playback")
	stopCmd     = app.Command("stop", "Stop playback")

	modeCmd  = app.Command("mode", "Set the loop mode")
	modeName = modeCmd.Arg("mode", "none, loop, one or shuffle").Required().Enum(
		"none", "off", "loop", "repeat_all", "one", "repeat_one", "shuffle")

	radioCmd = app.Command("radio", "Replace the queue with a radio session")

	searchCmd   = app.Command("search", "Search the catalog")
	searchQuery = searchCmd.Arg("query", "Search terms").Required().Strings()
	searchLimit = searchCmd.Flag("limit", "Maximum results").Default("10").Int()

	eventsCmd = app.Command("events", "Follow player events until interrupted").Alias("watch")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := httpapi.NewClient(*server, *token, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, client, command); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func execute(ctx context.Context, client *httpapi.Client, command string) error {
	switch command {
	case statusCmd.FullCommand():
		return printStatus(client.Status(ctx))
	case queueCmd.FullCommand():
		return listQueue(ctx, client)
	case playCmd.FullCommand():
		return play(ctx, client)
	case playNextCmd.FullCommand():
		return printStatus(client.PlayNext(ctx, *playNextTrack))
	case nextCmd.FullCommand():
		return printStatus(client.Next(ctx))
	case previousCmd.FullCommand():
		return printStatus(client.Previous(ctx))
	case pauseCmd.FullCommand():
		return printStatus(client.Pause(ctx))
	case resumeCmd.FullCommand():
		return printStatus(client.Resume(ctx))
	case stopCmd.FullCommand():
		return printStatus(client.Stop(ctx))
	case modeCmd.FullCommand():
		return printStatus(client.SetMode(ctx, *modeName))
	case radioCmd.FullCommand():
		return printStatus(client.StartRadio(ctx))
	case searchCmd.FullCommand():
		return search(ctx, client)
	case eventsCmd.FullCommand():
		return follow(ctx, client)
	}
	return nil
}

func printStatus(s *httpapi.StatusResponse, err error) error {
	if err != nil {
		return err
	}

	fmt.Println("\n=== PLAYER STATUS ===")
	fmt.Printf("State: %s\n", s.State)
	fmt.Printf("Mode: %s\n", s.Mode)
	if s.Radio {
		fmt.Println("Radio: on")
	}
	fmt.Printf("Queue Length: %d\n", s.Length)

	if s.Track != nil {
		fmt.Printf("\nCurrent Track (%d/%d):\n", s.Position+1, s.Length)
		fmt.Printf("  Track ID: %s\n", s.Track.ID)
		fmt.Printf("  Name: %s\n", s.Track.Name)
		fmt.Printf("  Artists: %s\n", strings.Join(s.Track.Artists, ", "))
		if s.Track.Album != "" {
			fmt.Printf("  Album: %s\n", s.Track.Album)
		}
		if s.Track.URL != "" {
			fmt.Printf("  URL: %s\n", s.Track.URL)
		}
		fmt.Printf("  Progress: %s / %s\n", formatMs(s.ElapsedMs), formatMs(s.DurationMs))
	} else {
		fmt.Println("\nNo track loaded")
	}
	fmt.Println()
	return nil
}

func listQueue(ctx context.Context, client *httpapi.Client) error {
	q, err := client.Queue(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== QUEUE (%d tracks, mode %s) ===\n", len(q.Tracks), q.Mode)
	for i, t := range q.Tracks {
		marker := "  "
		if i == q.Position {
			marker = "> "
		}
		fmt.Printf("%s%3d. %s - %s [%s]\n", marker, i+1, t.Name, strings.Join(t.Artists, ", "), formatMs(t.DurationMs))
	}
	fmt.Println()
	return nil
}

func play(ctx context.Context, client *httpapi.Client) error {
	resp, err := client.ReplaceQueue(ctx, httpapi.ReplaceQueueRequest{
		TrackIDs: *playTracks,
		Playlist: *playPlaylist,
		Album:    *playAlbum,
	})
	if resp != nil {
		for _, r := range resp.Rejected {
			fmt.Printf("Rejected: %s (%s)\n", r.ID, r.Code)
		}
	}
	if err != nil {
		return err
	}

	if resp.Source != "" {
		fmt.Printf("Playing %s: %d tracks queued\n", resp.Source, resp.Queued)
	} else {
		fmt.Printf("%d tracks queued\n", resp.Queued)
	}
	return nil
}

func search(ctx context.Context, client *httpapi.Client) error {
	tracks, err := client.Search(ctx, strings.Join(*searchQuery, " "), *searchLimit)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		fmt.Println("No tracks found")
		return nil
	}
	for _, t := range tracks {
		fmt.Printf("%s  %s - %s [%s]\n", t.ID, t.Name, strings.Join(t.Artists, ", "), formatMs(t.DurationMs))
	}
	return nil
}

func follow(ctx context.Context, client *httpapi.Client) error {
	fmt.Println("Following events (Ctrl+C to stop)...")
	return client.Events(ctx, func(n *notification.Notification) error {
		line := fmt.Sprintf("[%s] #%d %s state=%s mode=%s",
			n.At.Local().Format(time.TimeOnly), n.SequenceNo, n.Type, n.State, n.Mode)
		if n.Track != nil {
			line += fmt.Sprintf(" track=%q by %s", n.Track.Name, strings.Join(n.Track.Artists, ", "))
		}
		if n.Message != "" {
			line += " message=" + n.Message
		}
		fmt.Println(line)
		return nil
	})
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
