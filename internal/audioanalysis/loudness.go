package audioanalysis

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/roomscape/roomscape-api/internal/logger"
)

// DefaultLUFS is assumed whenever a file cannot be analyzed.
const DefaultLUFS = -23.0

var meanVolumeRe = regexp.MustCompile(`mean_volume: ([-\d.]+) dB`)

// Prober measures the mean volume of an audio file in dB.
type Prober interface {
	MeanVolumeDB(ctx context.Context, path string) (float64, error)
}

// FFmpegProber shells out to ffmpeg's volumedetect filter and parses the
// mean_volume line from stderr.
type FFmpegProber struct {
	BinPath string
}

func NewFFmpegProber() *FFmpegProber {
	return &FFmpegProber{BinPath: "ffmpeg"}
}

func (p *FFmpegProber) MeanVolumeDB(ctx context.Context, path string) (float64, error) {
	bin := p.BinPath
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner",
		"-i", path,
		"-af", "volumedetect",
		"-f", "null", "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// volumedetect reports on stderr; the command itself succeeds even for
	// short files, so run errors are real failures.
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffmpeg failed: %w (%s)", err, stderr.String())
	}

	match := meanVolumeRe.FindSubmatch(stderr.Bytes())
	if match == nil {
		return 0, fmt.Errorf("no mean_volume in ffmpeg output")
	}
	return strconv.ParseFloat(string(match[1]), 64)
}

// Analyzer derives normalized loudness values for downloaded sounds.
type Analyzer struct {
	prober Prober
}

func NewAnalyzer(prober Prober) *Analyzer {
	return &Analyzer{prober: prober}
}

// LoudnessLUFS estimates the integrated loudness of a file. The volumedetect
// mean volume sits roughly 3 dB above LUFS for typical program material.
// Missing files and probe failures fall back to DefaultLUFS rather than
// failing the pipeline.
func (a *Analyzer) LoudnessLUFS(ctx context.Context, path string) float64 {
	logger.Info("Analyzing audio loudness", logger.Fields{"path": path})

	if _, err := os.Stat(path); err != nil {
		logger.Error("File does not exist for loudness analysis", err, logger.Fields{"path": path})
		return DefaultLUFS
	}

	mean, err := a.prober.MeanVolumeDB(ctx, path)
	if err != nil {
		logger.Error("Loudness analysis failed", err, logger.Fields{"path": path})
		return DefaultLUFS
	}

	lufs := mean - 3
	logger.Info("Detected mean volume", logger.Fields{"mean_db": mean, "lufs": lufs})
	return lufs
}

// LufsToNormalized maps a LUFS value onto [0,1]: silence (-60 or below)
// maps to 0, full scale to 1. Result is rounded to two decimals; NaN maps
// to the 0.5 midpoint.
func LufsToNormalized(lufs float64) float64 {
	if math.IsNaN(lufs) {
		return 0.5
	}
	clamped := math.Max(-60, math.Min(0, lufs))
	return math.Round((1-math.Abs(clamped)/60)*100) / 100
}
