package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/beatlab/tapalign/pkg/logger"
	"github.com/beatlab/tapalign/pkg/tapalign"
	"github.com/beatlab/tapalign/pkg/utils"
)

// Flags shared by every subcommand
var (
	dbPath     string
	tempDir    string
	sampleRate int
)

func addGlobalFlags(fs *flag.FlagSet) {
	fs.StringVar(&dbPath, "db", "tapalign.sqlite3", "Path to the stimulus cache database")
	fs.StringVar(&tempDir, "temp", "/tmp", "Directory for temporary audio conversion files")
	fs.IntVar(&sampleRate, "rate", 44100, "Audio sample rate for stimulus rendering and analysis")
}

func createService(plotDir string) (tapalign.Service, error) {
	return tapalign.NewService(
		tapalign.WithDBPath(dbPath),
		tapalign.WithTempDir(tempDir),
		tapalign.WithSampleRate(sampleRate),
		tapalign.WithPlotDir(plotDir),
	)
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "prepare":
		handlePrepare()
	case "analyze":
		handleAnalyze()
	case "list":
		handleList()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tapalign - tap-to-beat analysis tool

Usage:
  tapalign prepare <music.wav> -name <stimulus-name> [-out-dir DIR]
  tapalign analyze <recording> -info <descriptor.json> [-plot-dir DIR]
  tapalign list

Global flags: -db, -temp, -rate`)
}

func handlePrepare() {
	log := logger.GetLogger()

	prepareCmd := flag.NewFlagSet("prepare", flag.ExitOnError)
	name := prepareCmd.String("name", "", "Stimulus name (identity key, required)")
	outDir := prepareCmd.String("out-dir", ".", "Directory for the prepared audio and descriptor")
	addGlobalFlags(prepareCmd)
	prepareCmd.Parse(os.Args[2:])

	args := prepareCmd.Args()
	if len(args) < 1 || *name == "" {
		fmt.Println("Usage: tapalign prepare <music.wav> -name <stimulus-name> [-out-dir DIR]")
		os.Exit(1)
	}
	audioPath := args[0]

	if err := utils.MakeDir(*outDir); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	svc, err := createService("")
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	ctx := context.Background()
	desc, err := svc.PrepareStimulus(ctx, *name, audioPath)
	if err != nil {
		log.Fatalf("Preparation failed: %v", err)
	}

	wavOut := filepath.Join(*outDir, *name+".wav")
	infoOut := filepath.Join(*outDir, *name+".json")
	if err := svc.ExportStimulusAudio(ctx, *name, wavOut); err != nil {
		log.Fatalf("Exporting stimulus audio failed: %v", err)
	}
	if err := svc.ExportStimulusInfo(ctx, *name, infoOut); err != nil {
		log.Fatalf("Exporting stimulus info failed: %v", err)
	}

	fmt.Printf("Prepared stimulus %q\n", desc.Name)
	fmt.Printf("  duration:        %.2fs\n", desc.Duration)
	fmt.Printf("  expected onsets: %d\n", len(desc.Onsets))
	fmt.Printf("  markers:         %d\n", len(desc.Markers))
	if fi, err := os.Stat(wavOut); err == nil {
		fmt.Printf("  audio:           %s (%s)\n", wavOut, humanize.Bytes(uint64(fi.Size())))
	}
	if fi, err := os.Stat(infoOut); err == nil {
		fmt.Printf("  descriptor:      %s (%s)\n", infoOut, humanize.Bytes(uint64(fi.Size())))
	}
}

func handleAnalyze() {
	log := logger.GetLogger()

	analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
	infoPath := analyzeCmd.String("info", "", "Path to the stimulus descriptor (required)")
	plotDir := analyzeCmd.String("plot-dir", "", "Directory for diagnostic plots (optional)")
	jsonOut := analyzeCmd.Bool("json", false, "Print the verdict as JSON")
	addGlobalFlags(analyzeCmd)
	analyzeCmd.Parse(os.Args[2:])

	args := analyzeCmd.Args()
	if len(args) < 1 || *infoPath == "" {
		fmt.Println("Usage: tapalign analyze <recording> -info <descriptor.json> [-plot-dir DIR]")
		os.Exit(1)
	}
	recordingPath := args[0]

	desc, err := tapalign.LoadDescriptor(*infoPath)
	if err != nil {
		log.Fatalf("Loading descriptor failed: %v", err)
	}

	svc, err := createService(*plotDir)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	verdict, err := svc.AnalyzeRecording(context.Background(), recordingPath, desc)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	if *jsonOut {
		out, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			log.Fatalf("Encoding verdict failed: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	status := "PASSED"
	if verdict.Failed {
		status = fmt.Sprintf("FAILED (%s)", verdict.Reason)
	}
	fmt.Printf("Verdict %s: %s\n", verdict.AnalysisID, status)
	fmt.Printf("  taps detected:  %d\n", verdict.Stats.OnsetCount)
	fmt.Printf("  matched:        %d/%d (%.0f%%)\n",
		verdict.Stats.Matched, len(verdict.Matches), verdict.Stats.MatchRate*100)
	fmt.Printf("  misses/extras:  %d/%d\n", verdict.Stats.Misses, verdict.Stats.Extras)
	fmt.Printf("  mean abs async: %.1fms\n", verdict.Stats.MeanAbsAsynchrony*1000)
}

func handleList() {
	log := logger.GetLogger()

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	addGlobalFlags(listCmd)
	listCmd.Parse(os.Args[2:])

	svc, err := createService("")
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer svc.Close()

	names, err := svc.ListStimuli()
	if err != nil {
		log.Fatalf("Listing stimuli failed: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No prepared stimuli.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}
