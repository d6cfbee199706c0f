// Package main provides the audio service client for testing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/nativeaudio/internal/api/connect"
)

var (
	app    = kingpin.New("audioctl", "Native audio service client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Service token (or set AUDIOD_TOKEN env)").Envar("AUDIOD_TOKEN").String()
	origin = app.Flag("origin", "Process context the commands come from").Default("").String()

	// create command
	createCmd          = app.Command("create", "Create an audio source")
	createID           = createCmd.Arg("audio-id", "Audio ID").Required().String()
	createSource       = createCmd.Arg("source", "Media locator (URL or file path)").Required().String()
	createTitle        = createCmd.Flag("title", "Friendly title").String()
	createArtist       = createCmd.Flag("artist", "Artist name").String()
	createAlbum        = createCmd.Flag("album", "Album title").String()
	createArtwork      = createCmd.Flag("artwork", "Artwork URL").String()
	createNotification = createCmd.Flag("notification", "Use for the notification surface").Bool()
	createBackground   = createCmd.Flag("background", "Background music").Bool()
	createLoop         = createCmd.Flag("loop", "Loop playback").Bool()
	createUpdateURL    = createCmd.Flag("update-url", "Metadata update URL").String()
	createInterval     = createCmd.Flag("update-interval", "Metadata update interval in seconds").Float64()

	initializeCmd = app.Command("initialize", "Attach a player to an audio source")
	initializeID  = initializeCmd.Arg("audio-id", "Audio ID").Required().String()

	changeSourceCmd    = app.Command("change-source", "Change the media locator")
	changeSourceID     = changeSourceCmd.Arg("audio-id", "Audio ID").Required().String()
	changeSourceSource = changeSourceCmd.Arg("source", "Media locator").Required().String()

	// change-metadata command, empty values are left unchanged
	changeMetadataCmd       = app.Command("change-metadata", "Change metadata fields")
	changeMetadataID        = changeMetadataCmd.Arg("audio-id", "Audio ID").Required().String()
	changeMetadataTitle     = changeMetadataCmd.Flag("title", "Friendly title").String()
	changeMetadataArtist    = changeMetadataCmd.Flag("artist", "Artist name").String()
	changeMetadataAlbum     = changeMetadataCmd.Flag("album", "Album title").String()
	changeMetadataArtwork   = changeMetadataCmd.Flag("artwork", "Artwork URL").String()
	changeMetadataUpdateURL = changeMetadataCmd.Flag("update-url", "Metadata update URL").String()
	changeMetadataInterval  = changeMetadataCmd.Flag("update-interval", "Metadata update interval in seconds").Float64()

	updateMetadataCmd = app.Command("update-metadata", "Fetch remote metadata now")
	updateMetadataID  = updateMetadataCmd.Arg("audio-id", "Audio ID").Required().String()

	durationCmd = app.Command("duration", "Get the duration in seconds")
	durationID  = durationCmd.Arg("audio-id", "Audio ID").Required().String()

	currentTimeCmd = app.Command("current-time", "Get the position in seconds")
	currentTimeID  = currentTimeCmd.Arg("audio-id", "Audio ID").Required().String()

	playCmd = app.Command("play", "Start playback")
	playID  = playCmd.Arg("audio-id", "Audio ID").Required().String()

	pauseCmd = app.Command("pause", "Pause playback")
	pauseID  = pauseCmd.Arg("audio-id", "Audio ID").Required().String()

	seekCmd     = app.Command("seek", "Seek to a position")
	seekID      = seekCmd.Arg("audio-id", "Audio ID").Required().String()
	seekSeconds = seekCmd.Arg("seconds", "Position in seconds").Required().Float64()

	stopCmd = app.Command("stop", "Stop playback and rewind")
	stopID  = stopCmd.Arg("audio-id", "Audio ID").Required().String()

	volumeCmd   = app.Command("volume", "Set the volume (0 to 1)")
	volumeID    = volumeCmd.Arg("audio-id", "Audio ID").Required().String()
	volumeValue = volumeCmd.Arg("volume", "Volume").Required().Float64()

	rateCmd   = app.Command("rate", "Set the playback rate")
	rateID    = rateCmd.Arg("audio-id", "Audio ID").Required().String()
	rateValue = rateCmd.Arg("rate", "Rate").Required().Float64()

	isPlayingCmd = app.Command("is-playing", "Report whether the source is playing")
	isPlayingID  = isPlayingCmd.Arg("audio-id", "Audio ID").Required().String()

	destroyCmd = app.Command("destroy", "Release an audio source")
	destroyID  = destroyCmd.Arg("audio-id", "Audio ID").Required().String()

	appStateCmd        = app.Command("app-state", "Report the app moving to the foreground or background")
	appStateForeground = appStateCmd.Flag("foreground", "App is in the foreground").Bool()

	taskRemovedCmd = app.Command("task-removed", "Run the task removal path")

	statusCmd = app.Command("status", "Show the hosting context status")

	// subscribe command
	subscribeCmd     = app.Command("subscribe", "Stream callbacks")
	subscribeKinds   = subscribeCmd.Flag("kind", "Callback kind to register (repeatable)").Strings()
	subscribeAudioID = subscribeCmd.Flag("audio-id", "Audio ID for source callbacks").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(
		http.DefaultClient,
		*server,
		*origin,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(*token)),
	)

	ctx := context.Background()

	switch command {
	case createCmd.FullCommand():
		params := map[string]any{
			"audioId":            *createID,
			"audioSource":        *createSource,
			"useForNotification": *createNotification,
			"isBackgroundMusic":  *createBackground,
			"loop":               *createLoop,
		}
		setString(params, "friendlyTitle", *createTitle)
		setString(params, "artistName", *createArtist)
		setString(params, "albumTitle", *createAlbum)
		setString(params, "artworkSource", *createArtwork)
		setString(params, "metadataUpdateUrl", *createUpdateURL)
		if *createInterval > 0 {
			params["metadataUpdateInterval"] = *createInterval
		}
		call(ctx, client, apiconnect.CreateProcedure, params)
	case initializeCmd.FullCommand():
		call(ctx, client, apiconnect.InitializeProcedure, audioID(*initializeID))
	case changeSourceCmd.FullCommand():
		call(ctx, client, apiconnect.ChangeAudioSourceProcedure, map[string]any{
			"audioId": *changeSourceID,
			"source":  *changeSourceSource,
		})
	case changeMetadataCmd.FullCommand():
		params := audioID(*changeMetadataID)
		setString(params, "friendlyTitle", *changeMetadataTitle)
		setString(params, "artistName", *changeMetadataArtist)
		setString(params, "albumTitle", *changeMetadataAlbum)
		setString(params, "artworkSource", *changeMetadataArtwork)
		setString(params, "metadataUpdateUrl", *changeMetadataUpdateURL)
		if *changeMetadataInterval > 0 {
			params["metadataUpdateInterval"] = *changeMetadataInterval
		}
		call(ctx, client, apiconnect.ChangeMetadataProcedure, params)
	case updateMetadataCmd.FullCommand():
		call(ctx, client, apiconnect.UpdateMetadataNowProcedure, audioID(*updateMetadataID))
	case durationCmd.FullCommand():
		call(ctx, client, apiconnect.GetDurationProcedure, audioID(*durationID))
	case currentTimeCmd.FullCommand():
		call(ctx, client, apiconnect.GetCurrentTimeProcedure, audioID(*currentTimeID))
	case playCmd.FullCommand():
		call(ctx, client, apiconnect.PlayProcedure, audioID(*playID))
	case pauseCmd.FullCommand():
		call(ctx, client, apiconnect.PauseProcedure, audioID(*pauseID))
	case seekCmd.FullCommand():
		call(ctx, client, apiconnect.SeekProcedure, map[string]any{
			"audioId":       *seekID,
			"timeInSeconds": *seekSeconds,
		})
	case stopCmd.FullCommand():
		call(ctx, client, apiconnect.StopProcedure, audioID(*stopID))
	case volumeCmd.FullCommand():
		call(ctx, client, apiconnect.SetVolumeProcedure, map[string]any{
			"audioId": *volumeID,
			"volume":  *volumeValue,
		})
	case rateCmd.FullCommand():
		call(ctx, client, apiconnect.SetRateProcedure, map[string]any{
			"audioId": *rateID,
			"rate":    *rateValue,
		})
	case isPlayingCmd.FullCommand():
		call(ctx, client, apiconnect.IsPlayingProcedure, audioID(*isPlayingID))
	case destroyCmd.FullCommand():
		call(ctx, client, apiconnect.DestroyProcedure, audioID(*destroyID))
	case appStateCmd.FullCommand():
		call(ctx, client, apiconnect.ReportAppStateProcedure, map[string]any{"foreground": *appStateForeground})
	case taskRemovedCmd.FullCommand():
		call(ctx, client, apiconnect.TaskRemovedProcedure, nil)
	case statusCmd.FullCommand():
		call(ctx, client, apiconnect.GetStatusProcedure, nil)
	case subscribeCmd.FullCommand():
		subscribe(ctx, client, *subscribeKinds, *subscribeAudioID)
	}
}

func audioID(id string) map[string]any {
	return map[string]any{"audioId": id}
}

func setString(params map[string]any, key, value string) {
	if value != "" {
		params[key] = value
	}
}

func call(ctx context.Context, client *apiconnect.Client, procedure string, params map[string]any) {
	resp, err := client.Call(ctx, procedure, params)
	if err != nil {
		fmt.Printf("Error [%s]: %v\n", connect.CodeOf(err), err)
		os.Exit(1)
	}
	if len(resp) == 0 {
		fmt.Println("OK")
		return
	}
	printJSON(resp)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%v\n", v)
		return
	}
	fmt.Println(string(out))
}

// subscribe streams callbacks and registers kinds once the channel is known.
func subscribe(ctx context.Context, client *apiconnect.Client, kinds []string, audioID string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		cancel()
	}()

	err := client.Subscribe(ctx, func(msg map[string]any) error {
		if msg["type"] != "subscribed" {
			fmt.Printf("\n[Sequence: %v] %v\n", msg["sequenceNo"], msg["kind"])
			printJSON(msg)
			return nil
		}

		channelID, _ := msg["channelId"].(string)
		fmt.Printf("Subscribed to callbacks: channel=%s. Press Ctrl+C to exit.\n", channelID)
		for _, kind := range kinds {
			resp, err := client.Call(ctx, apiconnect.RegisterCallbackProcedure, map[string]any{
				"channelId": channelID,
				"kind":      kind,
				"audioId":   audioID,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s: callback=%v\n", kind, resp["callbackId"])
		}
		return nil
	})
	if err != nil {
		fmt.Printf("Stream error: %v\n", err)
		os.Exit(1)
	}
}
