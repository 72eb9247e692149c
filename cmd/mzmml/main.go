package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbegin/mzmml-go"
)

const defaultMML = "t120 l8 o4 cdefgab>c"

var (
	logger *log.Logger

	mmlPath   string
	mmlInline string
)

var rootCmd = &cobra.Command{
	Use:   "mzmml",
	Short: "MML compiler for the MZ-1500 PSGs",
	Long: `mzmml compiles MML to channel programs for the two SN76489 PSGs and the
8253 beeper of the Sharp MZ-1500. Songs can be previewed, rendered to WAV,
or exported as a Quick Disk image that plays on the real machine.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&mmlPath, "file", "f", "", "path to an MML file")
	rootCmd.PersistentFlags().StringVar(&mmlInline, "mml", "", "inline MML string")
}

func main() {
	logger = log.New(os.Stdout, "", log.Ldate|log.Ltime)
	cobra.CheckErr(rootCmd.Execute())
}

// resolveMMLInput prefers --mml, then --file, then the first argument.
func resolveMMLInput(args []string) (string, error) {
	if strings.TrimSpace(mmlInline) != "" {
		return mmlInline, nil
	}
	path := mmlPath
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return defaultMML, nil
}

// inputName is the input file's base name without extension, or fallback.
func inputName(args []string, fallback string) string {
	path := mmlPath
	if path == "" && len(args) > 0 {
		path = args[0]
	}
	if path == "" || mmlInline != "" {
		return fallback
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// compileInput compiles the resolved input and logs its diagnostics.
func compileInput(args []string) (string, *mzmml.Song, error) {
	text, err := resolveMMLInput(args)
	if err != nil {
		return "", nil, err
	}
	song, err := mzmml.Compile(text)
	if err != nil {
		return text, nil, err
	}
	for _, d := range song.Diagnostics {
		line, col := position(text, d.Offset)
		logger.Printf("%d:%d: %s", line, col, d.Message)
	}
	return text, song, nil
}

// position converts a byte offset to a 1-based line and column.
func position(text string, offset int) (int, int) {
	offset = min(offset, len(text))
	line := strings.Count(text[:offset], "\n") + 1
	col := offset - strings.LastIndexByte(text[:offset], '\n')
	return line, col
}

func describe(song *mzmml.Song) string {
	names := make([]string, 0, len(song.Channels))
	for _, ch := range song.Channels {
		names = append(names, ch.Name)
	}
	loop := ""
	if song.Loops() {
		loop = ", loops"
	}
	return fmt.Sprintf("channels %s, %.2f s%s", strings.Join(names, ""), song.DurationMs()/1000, loop)
}
