/*------------------------------------------------------------------
 *
 * Purpose:	Main program for the lamp show: drives eight GPIO-wired
 *		lamps in sync with WAV/MP3 playback, one song per
 *		invocation, or interactively via a text menu.
 *
 *---------------------------------------------------------------*/
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/gsebik/lampshow/internal/config"
	"github.com/gsebik/lampshow/internal/control"
	"github.com/gsebik/lampshow/internal/coordinator"
	"github.com/gsebik/lampshow/internal/gpio"
	"github.com/gsebik/lampshow/internal/logging"
	"github.com/gsebik/lampshow/internal/signalstop"
)

func main() {
	var verbose = pflag.BoolP("verbose", "v", false, "Enable debug logging.")
	var musicDir = pflag.StringP("music-dir", "m", config.DefaultMusicDir, "Directory containing .mp3/.wav audio and .txt pattern files.")
	var setLamps = pflag.StringP("set-lamps", "s", "", "Drive all lamps 'on' or 'off' and exit, without playing anything.")
	var emulateFile = pflag.StringP("emulate-udp", "e", "", "Read song requests one JSON object per line from this file instead of the UDP control listener.")
	var configFile = pflag.StringP("config-file", "c", "", "Optional YAML config file overriding defaults.")
	var telemetry = pflag.BoolP("telemetry", "t", false, "Record per-cycle timing and write a CSV report after each song.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - lamp show display synchronized to audio playback.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: lampshow [options] [song-name]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	logging.SetVerbose(*verbose)
	lg := logging.L()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			lg.Fatal("failed to load config file", "err", err)
		}
		cfg = loaded
	}
	if *musicDir != config.DefaultMusicDir {
		cfg.MusicDir = *musicDir
	}
	if !strings.HasSuffix(cfg.MusicDir, "/") {
		cfg.MusicDir += "/"
	}

	lines := cfg.LampLineTable()

	if *setLamps != "" {
		runSetLamps(lines, *setLamps, lg)
		return
	}

	win, err := gpio.Open()
	if err != nil {
		lg.Fatal("failed to open GPIO register window", "err", err)
	}
	win.ConfigureOutputs(lines[:])
	defer win.Close()

	stop := signalstop.NewFlag()
	sigLayer := signalstop.New(stop, win, lines[:])
	defer sigLayer.Stop()

	coord := coordinator.New(win, lines, stop, lg)
	coord.Telemetry = *telemetry

	switch {
	case pflag.NArg() > 0:
		runOneSong(coord, cfg.MusicDir, pflag.Arg(0), lg)
	case *emulateFile != "":
		runEmulated(coord, cfg.MusicDir, *emulateFile, stop, lg)
	default:
		runInteractiveMenu(coord, cfg.MusicDir, stop, lg)
	}
}

func runSetLamps(lines [gpio.LampCount]uint, mode string, lg *log.Logger) {
	var on bool
	switch strings.ToLower(mode) {
	case "on":
		on = true
	case "off":
		on = false
	default:
		lg.Fatal("--set-lamps requires 'on' or 'off'", "got", mode)
		return
	}
	if err := gpio.SetAllCdev(lines, on); err != nil {
		lg.Fatal("failed to drive lamps via gpio character device", "err", err)
	}
}

func runOneSong(coord *coordinator.Coordinator, musicDir, song string, lg *log.Logger) {
	if err := coord.PlaySong(musicDir, song); err != nil {
		lg.Error("song playback failed", "song", song, "err", err)
		os.Exit(1)
	}
}

func runEmulated(coord *coordinator.Coordinator, musicDir, emulateFile string, stop *signalstop.Flag, lg *log.Logger) {
	src, err := control.OpenEmulated(emulateFile)
	if err != nil {
		lg.Fatal("failed to open emulation file", "err", err)
	}
	defer src.Close()

	for !stop.Stopped() {
		song, err := src.Next()
		if err != nil {
			return
		}
		if err := coord.PlaySong(musicDir, song); err != nil {
			lg.Error("song playback failed", "song", song, "err", err)
		}
	}
}

func runInteractiveMenu(coord *coordinator.Coordinator, musicDir string, stop *signalstop.Flag, lg *log.Logger) {
	songs, err := listSongs(musicDir)
	if err != nil {
		lg.Fatal("failed to list songs", "dir", musicDir, "err", err)
	}
	if len(songs) == 0 {
		lg.Fatal("no songs found", "dir", musicDir)
	}

	reader := bufio.NewReader(os.Stdin)
	for !stop.Stopped() {
		fmt.Println("\nAvailable songs:")
		for i, s := range songs {
			fmt.Printf("  %d) %s\n", i+1, s)
		}
		fmt.Println("  q) quit")
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "q" || line == "quit" {
			return
		}

		idx := -1
		fmt.Sscanf(line, "%d", &idx)
		if idx < 1 || idx > len(songs) {
			fmt.Println("invalid selection")
			continue
		}
		if err := coord.PlaySong(musicDir, songs[idx-1]); err != nil {
			lg.Error("song playback failed", "song", songs[idx-1], "err", err)
		}
	}
}

// listSongs returns the base names of songs that have both a pattern
// file and (optionally) an audio file under dir.
func listSongs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var songs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != ".txt" {
			continue
		}
		songs = append(songs, strings.TrimSuffix(name, ".txt"))
	}
	return songs, nil
}
