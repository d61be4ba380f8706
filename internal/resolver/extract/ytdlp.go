package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"mediarelay/internal/pkg/errors"
)

// YtDLPClassifier maps yt-dlp stderr to the taxonomy.
var YtDLPClassifier = errors.Classifier{
	Op: "extract.ytdlp",
	Rules: []errors.Rule{
		{Contains: "login is required", Code: errors.CodeAuthRequired},
		{Contains: "login required", Code: errors.CodeAuthRequired},
		{Contains: "use --cookies", Code: errors.CodeAuthRequired},
		{Contains: "private", Code: errors.CodeAuthRequired},
		{Contains: "sign in to confirm", Code: errors.CodeAuthRequired},
		{Contains: "HTTP Error 404", Code: errors.CodeNotFound},
		{Contains: "HTTP Error 410", Code: errors.CodeNotFound},
		{Contains: "video unavailable", Code: errors.CodeNotFound},
		{Contains: "has been removed", Code: errors.CodeNotFound},
		{Contains: "does not exist", Code: errors.CodeNotFound},
		{Contains: "Unsupported URL", Code: errors.CodeUnsupported},
		{Contains: "no video formats found", Code: errors.CodeUnsupported},
		{Contains: "fetching the webpage", Code: errors.CodeTransient},
		{Contains: "unable to download webpage", Code: errors.CodeTransient},
		{Contains: "HTTP Error 429", Code: errors.CodeTransient},
		{Contains: "HTTP Error 5", Code: errors.CodeTransient},
		{Contains: "timed out", Code: errors.CodeTransient},
		{Contains: "connection reset", Code: errors.CodeTransient},
		{Contains: "temporary failure", Code: errors.CodeTransient},
	},
}

// Runner executes a command and returns its stdout and stderr.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs the command with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// YtDLP runs `yt-dlp -J` and decodes the single JSON document it prints.
type YtDLP struct {
	Binary  string
	Retries int
	Run     Runner
}

// NewYtDLP returns an extractor that runs binary.
func NewYtDLP(binary string, retries int) *YtDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDLP{Binary: binary, Retries: retries, Run: ExecRunner}
}

func (y *YtDLP) Name() string { return "yt-dlp" }

// Args returns the command line for req, without the binary.
func (y *YtDLP) Args(req Request) []string {
	args := []string{
		"-J",
		"--yes-playlist",
		"--no-warnings",
		"--no-progress",
		"--retries", strconv.Itoa(y.Retries),
	}
	if req.UserAgent != "" {
		args = append(args, "--user-agent", req.UserAgent)
	}
	if req.CookiePath != "" {
		args = append(args, "--cookies", req.CookiePath)
	}
	if req.AudioOnly {
		args = append(args, "-f", "bestaudio/best")
	}
	return append(args, "--", req.URL)
}

func (y *YtDLP) Extract(ctx context.Context, req Request) (*Info, error) {
	run := y.Run
	if run == nil {
		run = ExecRunner
	}
	stdout, stderr, err := run(ctx, y.Binary, y.Args(req)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, YtDLPClassifier.Classify(ctx.Err())
		}
		msg := strings.TrimSpace(string(stderr))
		return nil, YtDLPClassifier.Classify(fmt.Errorf("yt-dlp failed: %v: %s", err, msg))
	}

	var info Info
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, errors.Wrap(err, "extract.ytdlp", "decode yt-dlp output")
	}
	info.Extractor = y.Name()
	return &info, nil
}
