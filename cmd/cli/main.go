package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/himanishpuri/soundmark/internal/audio"
	"github.com/himanishpuri/soundmark/internal/matcher"
	"github.com/himanishpuri/soundmark/internal/render"
	"github.com/himanishpuri/soundmark/internal/storage"
	"github.com/himanishpuri/soundmark/pkg/logger"
	"github.com/himanishpuri/soundmark/pkg/models"
	"github.com/himanishpuri/soundmark/pkg/soundmark"
	"github.com/himanishpuri/soundmark/pkg/utils"
)

// Global flags
var (
	dbPath     string
	storeKind  string
	tempDir    string
	sampleRate int
	fanOut     int
	tieBreak   string
	workers    int
)

var (
	success = color.New(color.FgGreen, color.Bold).SprintFunc()
	failure = color.New(color.FgRed, color.Bold).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

func registerGlobalFlags() {
	flag.StringVar(&dbPath, "db", os.Getenv("SOUNDMARK_DB_PATH"), "Path to the fingerprint database (default depends on --store)")
	flag.StringVar(&storeKind, "store", getEnvOrDefault("SOUNDMARK_STORE", string(storage.KindFile)), "Database backend: file, sqlite or badger")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SOUNDMARK_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", audio.DefaultSampleRate, "Audio sample rate for processing")
	flag.IntVar(&fanOut, "fanout", 15, "Partners paired with each anchor peak")
	flag.StringVar(&tieBreak, "tie-break", "first-seen", "Winner among equal votes: first-seen or lowest-id")
	flag.IntVar(&workers, "workers", 0, "Concurrent decoders for add-dir (0 = number of CPUs)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates a new service with configured options
func createService() (soundmark.Service, error) {
	kind, err := storage.ParseKind(storeKind)
	if err != nil {
		return nil, err
	}
	tb, err := matcher.ParseTieBreak(tieBreak)
	if err != nil {
		return nil, err
	}
	if dbPath == "" {
		dbPath = storage.DefaultPath(kind)
	}
	opts := []soundmark.Option{
		soundmark.WithDBPath(dbPath),
		soundmark.WithStoreKind(kind),
		soundmark.WithAutoSave(true),
		soundmark.WithTempDir(tempDir),
		soundmark.WithSampleRate(sampleRate),
		soundmark.WithFanOut(fanOut),
		soundmark.WithTieBreak(tb),
	}
	if workers > 0 {
		opts = append(opts, soundmark.WithWorkers(workers))
	}
	return soundmark.NewService(opts...)
}

func mustService() soundmark.Service {
	svc, err := createService()
	if err != nil {
		fmt.Printf("%s Failed to create service: %v\n", failure("❌"), err)
		logger.GetLogger().Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	return svc
}

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	log := logger.GetLogger()

	registerGlobalFlags()
	flag.Usage = printUsage
	flag.Parse()

	printBanner()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Infof("Executing command: %s", command)

	switch command {
	case "add":
		handleAdd(args)
	case "add-dir":
		handleAddDir(args)
	case "match":
		handleMatch(args)
	case "record":
		handleRecord(args)
	case "list":
		handleList()
	case "delete":
		handleDelete(args)
	case "lookup":
		handleLookup(args)
	case "render":
		handleRender(args)
	case "stats":
		handleStats()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
 ___  ___  _   _ _ __   __| |_ __ ___   __ _ _ __| | __
/ __|/ _ \| | | | '_ \ / _' | '_ ' _ \ / _' | '__| |/ /
\__ \ (_) | |_| | | | | (_| | | | | | | (_| | |  |   <
|___/\___/ \__,_|_| |_|\__,_|_| |_| |_|\__,_|_|  |_|\_\

            Audio Fingerprinting CLI Tool
`
	fmt.Println(banner)
}

// parseInterleaved parses fs while allowing positional arguments before,
// between or after flags, so "add song.mp3 --title X" and
// "add --title X song.mp3" are equivalent. It returns the positionals in order.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// firstPositional parses fs and returns its first positional argument.
func firstPositional(fs *flag.FlagSet, args []string) string {
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		os.Exit(2)
	}
	if len(positional) == 0 {
		return ""
	}
	return positional[0]
}

func handleAdd(args []string) {
	log := logger.GetLogger()

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	title := addCmd.String("title", "", "Song title (read from tags when empty)")
	artist := addCmd.String("artist", "", "Artist name (read from tags when empty)")
	audioPath := firstPositional(addCmd, args)

	if audioPath == "" {
		fmt.Println("Error: audio file path required")
		fmt.Println("Usage: soundmark add <audio_file> [--title <title>] [--artist <artist>]")
		os.Exit(1)
	}

	fmt.Println("\n🔧 Initializing service...")
	svc := mustService()
	defer svc.Close()

	fmt.Println("🎵 Processing audio file...")
	fmt.Println("   This may take a few moments for large files")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	songID, err := svc.AddSongFile(ctx, audioPath, *title, *artist)
	if err != nil {
		fmt.Printf("\n%s Failed to add song: %v\n", failure("❌"), err)
		log.Errorf("AddSongFile failed: %v", err)
		os.Exit(1)
	}

	song, err := svc.GetSong(songID)
	if err != nil {
		log.Errorf("GetSong failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n%s Successfully added song to database!\n", success("✅"))
	fmt.Printf("   ID:      %s\n", song.ID)
	fmt.Printf("   Title:   %s\n", song.Title)
	fmt.Printf("   Artist:  %s\n", song.Artist)
	log.Infof("Successfully added %s", songID)
}

func handleAddDir(args []string) {
	log := logger.GetLogger()

	addCmd := flag.NewFlagSet("add-dir", flag.ExitOnError)
	artist := addCmd.String("artist", "", "Artist applied to every file (read from tags when empty)")
	dir := firstPositional(addCmd, args)

	if dir == "" {
		fmt.Println("Usage: soundmark add-dir <directory> [--artist <artist>]")
		os.Exit(1)
	}

	files, err := utils.ListAudioFiles(dir)
	if err != nil {
		fmt.Printf("%s Failed to read directory: %v\n", failure("❌"), err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("\n📭 No audio files found")
		return
	}

	var total uint64
	tracks := make([]soundmark.Track, len(files))
	for i, f := range files {
		if st, err := os.Stat(f); err == nil {
			total += uint64(st.Size())
		}
		tracks[i] = soundmark.Track{Path: f, Artist: *artist}
	}
	fmt.Printf("\n📂 Found %s audio file(s), %s\n\n", humanize.Comma(int64(len(files))), humanize.Bytes(total))

	svc := mustService()
	defer svc.Close()

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(tracks)),
		mpb.PrependDecorators(
			decor.Name("Fingerprinting: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)

	start := time.Now()
	results, err := svc.AddSongs(context.Background(), tracks, func(soundmark.Track, error) {
		bar.Increment()
	})
	p.Wait()
	if err != nil {
		fmt.Printf("%s Failed to add songs: %v\n", failure("❌"), err)
		log.Errorf("AddSongs failed: %v", err)
		os.Exit(1)
	}

	added, prints := 0, 0
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("   %s %s: %v\n", failure("✗"), r.Track.Path, r.Err)
			continue
		}
		added++
		prints += r.Fingerprints
		fmt.Printf("   %s %s  %q by %s\n", success("✓"), r.SongID, r.Track.Title, r.Track.Artist)
	}

	fmt.Printf("\n%s Added %d of %d songs (%s fingerprints) in %s\n",
		success("✅"), added, len(results), humanize.Comma(int64(prints)), time.Since(start).Round(time.Millisecond))
}

func printMatch(res *models.MatchResult) {
	fmt.Printf("\n%s Match found!\n\n", success("✅"))
	fmt.Printf("🎵 %q by %s (%s)\n", res.Title, res.Artist, res.SongID)
	fmt.Printf("   Votes: %d | Confidence: %.1f%% | Offset: %.1fs\n", res.Votes, res.Confidence, res.OffsetSec)
	fmt.Printf("   %s\n", faint(fmt.Sprintf("%d occurrences of the query's fingerprints were found", res.Hits)))
}

func printRanking(results []models.MatchResult) {
	fmt.Printf("\n🎵 Top %d candidate(s):\n\n", len(results))
	for i, r := range results {
		fmt.Printf("%d. %q by %s (%s)\n", i+1, r.Title, r.Artist, r.SongID)
		fmt.Printf("   Votes: %d | Confidence: %.1f%% | Offset: %.1fs\n\n", r.Votes, r.Confidence, r.OffsetSec)
	}
}

func identify(svc soundmark.Service, src audio.Source, top int) {
	log := logger.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	clip, err := src.Load(ctx)
	if err != nil {
		fmt.Printf("\n%s Failed to read audio: %v\n", failure("❌"), err)
		log.Errorf("Load failed: %v", err)
		os.Exit(1)
	}

	fmt.Println("🔍 Analyzing audio...")
	fmt.Println("   Generating fingerprints and searching database")

	if top > 1 {
		results, err := svc.Rank(ctx, clip, top)
		if err != nil {
			fmt.Printf("\n%s Failed to rank songs: %v\n", failure("❌"), err)
			log.Errorf("Rank failed: %v", err)
			os.Exit(1)
		}
		if len(results) == 0 {
			fmt.Printf("\n%s %v\n", failure("❌"), models.ErrNoMatch)
			return
		}
		printRanking(results)
		return
	}

	res, err := svc.Identify(ctx, clip)
	if err != nil {
		fmt.Printf("\n%s Failed to match song: %v\n", failure("❌"), err)
		log.Errorf("Identify failed: %v", err)
		os.Exit(1)
	}
	if !res.Found {
		fmt.Printf("\n%s %v\n", failure("❌"), models.ErrNoMatch)
		return
	}
	printMatch(res)
}

func handleMatch(args []string) {
	matchCmd := flag.NewFlagSet("match", flag.ExitOnError)
	top := matchCmd.Int("top", 1, "Show the best N songs instead of a single match")
	excerpt := matchCmd.Duration("duration", 0, "Only use this much audio from the start of the file")
	audioPath := firstPositional(matchCmd, args)

	if audioPath == "" {
		fmt.Println("Usage: soundmark match <audio_file> [--top <n>] [--duration <d>]")
		os.Exit(1)
	}
	logger.GetLogger().Infof("Matching audio file: %s", audioPath)

	fmt.Println("\n🔧 Initializing service...")
	svc := mustService()
	defer svc.Close()

	identify(svc, audio.FileSource{
		Path:        audioPath,
		TempDir:     tempDir,
		SampleRate:  sampleRate,
		MaxDuration: *excerpt,
	}, *top)
}

func handleRecord(args []string) {
	recordCmd := flag.NewFlagSet("record", flag.ExitOnError)
	duration := recordCmd.Duration("duration", 10*time.Second, "How long to listen")
	top := recordCmd.Int("top", 1, "Show the best N songs instead of a single match")
	recordCmd.Parse(args)

	if !audio.MicrophoneAvailable {
		fmt.Printf("%s This build has no microphone support; rebuild with -tags portaudio\n", failure("❌"))
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	fmt.Printf("\n🎙️  Listening for %s...\n", *duration)
	identify(svc, audio.Recorder{Duration: *duration, SampleRate: sampleRate}, *top)
}

func handleList() {
	log := logger.GetLogger()

	svc := mustService()
	defer svc.Close()

	songs := svc.ListSongs()
	if len(songs) == 0 {
		fmt.Println("\n📭 No songs in database")
		log.Infof("No songs in database")
		return
	}

	fmt.Printf("\n📚 Found %d song(s):\n\n", len(songs))
	for _, song := range songs {
		fmt.Printf("%s  %q by %s\n", faint(song.ID.String()), song.Title, song.Artist)
	}
	log.Infof("Listed %d songs", len(songs))
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	deleteCmd := flag.NewFlagSet("delete", flag.ExitOnError)
	title := deleteCmd.String("title", "", "Title of the song to delete")
	artist := deleteCmd.String("artist", "", "Artist of the song to delete")
	deleteCmd.Parse(args)

	if *title == "" || *artist == "" {
		fmt.Println("Usage: soundmark delete --title <title> --artist <artist>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	id, err := svc.DeleteSong(context.Background(), *title, *artist)
	if errors.Is(err, models.ErrNotFound) {
		fmt.Printf("%s No song %q by %s\n", failure("❌"), *title, *artist)
		log.Warnf("Song not found: %v", err)
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("%s Failed to delete song: %v\n", failure("❌"), err)
		log.Errorf("DeleteSong failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n%s Successfully deleted song:\n", success("✅"))
	fmt.Printf("   ID:     %s\n", id)
	fmt.Printf("   Title:  %s\n", *title)
	fmt.Printf("   Artist: %s\n", *artist)
	fmt.Println(faint("   Songs after it have moved down by one id"))
}

func handleLookup(args []string) {
	if len(args) != 3 {
		fmt.Println("Usage: soundmark lookup <anchor_freq> <partner_freq> <delta>")
		os.Exit(1)
	}
	var vals [3]int
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			fmt.Printf("%s Invalid number %q: %v\n", failure("❌"), a, err)
			os.Exit(1)
		}
		vals[i] = v
	}
	fp := models.Fingerprint{AnchorFreq: vals[0], PartnerFreq: vals[1], Delta: vals[2]}

	svc := mustService()
	defer svc.Close()

	recs, ok := svc.Lookup(fp)
	if !ok {
		fmt.Printf("\n📭 Fingerprint %v is not in the database\n", fp)
		return
	}
	fmt.Printf("\n🔎 %d occurrence(s) of %v:\n\n", len(recs), fp)
	for _, r := range recs {
		title := "?"
		if song, err := svc.GetSong(r.SongID); err == nil {
			title = fmt.Sprintf("%q by %s", song.Title, song.Artist)
		}
		fmt.Printf("   %s at window %d  %s\n", r.SongID, r.Time, faint(title))
	}
}

func handleRender(args []string) {
	renderCmd := flag.NewFlagSet("render", flag.ExitOnError)
	out := renderCmd.String("out", "", "PNG output path (default: <audio_file>.png)")
	width := renderCmd.Int("width", render.DefaultOptions().Width, "Image width")
	height := renderCmd.Int("height", render.DefaultOptions().Height, "Image height")
	log10 := renderCmd.Bool("log", false, "Use a log10 amplitude scale")
	audioPath := firstPositional(renderCmd, args)

	if audioPath == "" {
		fmt.Println("Usage: soundmark render <audio_file> [--out <png>] [--width <px>] [--height <px>] [--log]")
		os.Exit(1)
	}
	if *out == "" {
		*out = strings.TrimSuffix(audioPath, ".wav") + ".png"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	clip, err := audio.FileSource{Path: audioPath, TempDir: tempDir, SampleRate: sampleRate}.Load(ctx)
	if err != nil {
		fmt.Printf("%s Failed to read audio: %v\n", failure("❌"), err)
		os.Exit(1)
	}
	if err := render.SavePNG(clip, *out, render.Options{Width: *width, Height: *height, Log10: *log10}); err != nil {
		fmt.Printf("%s Failed to render: %v\n", failure("❌"), err)
		os.Exit(1)
	}
	fmt.Printf("%s Wrote %s\n", success("✅"), *out)
}

func handleStats() {
	svc := mustService()
	defer svc.Close()

	st := svc.Stats()
	fmt.Println("\n📊 Database statistics:")
	fmt.Printf("   Songs:        %s\n", humanize.Comma(int64(st.Songs)))
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(int64(st.Fingerprints)))
	fmt.Printf("   Occurrences:  %s\n", humanize.Comma(int64(st.Records)))
	if fi, err := os.Stat(dbPath); err == nil && !fi.IsDir() {
		fmt.Printf("   File size:    %s\n", humanize.Bytes(uint64(fi.Size())))
	}
}

func printUsage() {
	fmt.Println("Soundmark - Audio Fingerprinting CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>          Database path (env: SOUNDMARK_DB_PATH)")
	fmt.Println("  --store <kind>       file, sqlite or badger (env: SOUNDMARK_STORE, default: file)")
	fmt.Println("  --temp <dir>         Temporary directory for audio conversion (env: SOUNDMARK_TEMP_DIR)")
	fmt.Println("  --rate <hz>          Audio sample rate (default: 44100)")
	fmt.Println("  --fanout <n>         Partners per anchor peak (default: 15)")
	fmt.Println("  --tie-break <mode>   first-seen or lowest-id")
	fmt.Println("  --workers <n>        Concurrent decoders for add-dir")
	fmt.Println("\nUsage:")
	fmt.Println("  soundmark [global-options] add <audio_file> [--title <title>] [--artist <artist>]")
	fmt.Println("  soundmark [global-options] add-dir <directory> [--artist <artist>]")
	fmt.Println("  soundmark [global-options] match <audio_file> [--top <n>] [--duration <d>]")
	fmt.Println("  soundmark [global-options] record [--duration <d>] [--top <n>]")
	fmt.Println("  soundmark [global-options] list")
	fmt.Println("  soundmark [global-options] delete --title <title> --artist <artist>")
	fmt.Println("  soundmark [global-options] lookup <anchor_freq> <partner_freq> <delta>")
	fmt.Println("  soundmark [global-options] render <audio_file> [--out <png>]")
	fmt.Println("  soundmark [global-options] stats")
	fmt.Println("\nExamples:")
	fmt.Println("  # Index a folder into a SQLite database")
	fmt.Println("  soundmark --store sqlite --db songs.sqlite3 add-dir ./music")
	fmt.Println()
	fmt.Println("  # Match the first ten seconds of a recording")
	fmt.Println("  soundmark match query.mp3 --duration 10s")
	fmt.Println()
	fmt.Println("  LOG_LEVEL=DEBUG soundmark match query.wav --top 5")
}
