package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrDecode is returned when input cannot be decoded as audio.
	ErrDecode = errors.New("media: cannot decode audio")
	// ErrEmptyInput is returned when there are no bytes to probe.
	ErrEmptyInput = errors.New("media: empty input")
	// ErrNoAudioStream is returned when the container holds no audio stream.
	ErrNoAudioStream = errors.New("media: no audio stream")
	// ErrNoDuration is returned when the decoder reports no usable duration.
	ErrNoDuration = errors.New("media: duration unavailable")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// probeResult is the subset of ffprobe JSON output used for metadata.
type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// FFprobeProber implements Prober using the ffprobe CLI.
type FFprobeProber struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	temp        TempStore
}

// NewFFprobeProber creates a new FFprobeProber that stages input through temp.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobeProber(ffprobePath string, temp TempStore) *FFprobeProber {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprobeProber{ffprobePath: ffprobePath, temp: temp}
}

// Probe implements Prober.Probe. The staged copy of data is removed before
// returning, whatever the outcome.
func (p *FFprobeProber) Probe(ctx context.Context, data []byte) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{}, fmt.Errorf("%w: %w", ErrDecode, ErrEmptyInput)
	}

	path, err := p.temp.SaveTemp(ctx, "probe", bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("stage probe input: %w", err)
	}
	defer func() {
		_ = p.temp.CleanupTemp(context.WithoutCancel(ctx), []string{path})
	}()

	raw, err := p.run(ctx, path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return parseProbeOutput(raw)
}

// run executes ffprobe against path and returns its JSON output.
func (p *FFprobeProber) run(ctx context.Context, path string) ([]byte, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// parseProbeOutput converts ffprobe JSON into Metadata.
// Zero or negative durations are returned as-is; deciding whether they can be
// split is the planner's job.
func parseProbeOutput(raw []byte) (Metadata, error) {
	var result probeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return Metadata{}, fmt.Errorf("%w: parse ffprobe output: %w", ErrDecode, err)
	}

	var audio []probeStream
	for _, s := range result.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			audio = append(audio, s)
		}
	}
	if len(audio) == 0 {
		return Metadata{}, fmt.Errorf("%w: %w", ErrDecode, ErrNoAudioStream)
	}

	duration, ok := parseSeconds(result.Format.Duration)
	if !ok {
		duration, ok = parseSeconds(audio[0].Duration)
	}
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %w", ErrDecode, ErrNoDuration)
	}

	return Metadata{
		DurationSeconds: duration,
		FormatName:      result.Format.FormatName,
		AudioCodec:      audio[0].CodecName,
		AudioStreams:    len(audio),
	}, nil
}

func parseSeconds(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" || strings.EqualFold(cleaned, "N/A") {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Verify interface implementation at compile time.
var _ Prober = (*FFprobeProber)(nil)
