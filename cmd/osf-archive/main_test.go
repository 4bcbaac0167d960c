package main_test

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	main "github.com/Sternrassler/osf-archiver/cmd/osf-archive"
	"github.com/Sternrassler/osf-archiver/internal/testutil"
	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLI_HelpShowsAllCommands(t *testing.T) {
	cli := &main.CLI{}
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	parser, err := kong.New(cli,
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
	)
	require.NoError(t, err)

	_, _ = parser.Parse([]string{"--help"})

	for _, cmd := range []string{"wiki", "files", "upload"} {
		assert.Contains(t, stdout.String(), cmd, "Help should mention %s command", cmd)
	}
}

func TestMain_Run_Help(t *testing.T) {
	stdout := &bytes.Buffer{}

	err := main.NewMain().Run(context.Background(), []string{"--help"}, stdout, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "Usage:")
	assert.Contains(t, stdout.String(), "--api-url")
}

func TestMain_Run_NoCommand(t *testing.T) {
	err := main.NewMain().Run(context.Background(), nil, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestMain_Run_WikiRequiresGUID(t *testing.T) {
	err := main.NewMain().Run(context.Background(), []string{"wiki"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestMain_Run_Wiki(t *testing.T) {
	mock := testutil.NewMockOSF()
	defer mock.Close()

	mock.AddWiki("registrations", "fxehm", "dtns3", "home", []byte("dtns3 data"))
	mock.AddWiki("registrations", "fxehm", "md549", "test1Ω≈ç√∫˜µ≤≥≥÷åß∂ƒ©˙∆∆˚¬…æ", []byte("md549 data"))
	mock.AddWiki("registrations", "fxehm", "p8kxa", "test2", []byte("p8kxa data"))
	mock.FailNext(testutil.ContentKey("md549"), 429)

	out := t.TempDir()
	metricsFile := filepath.Join(t.TempDir(), "osf.prom")
	stdout := &bytes.Buffer{}

	err := main.NewMain().Run(context.Background(), []string{
		"--api-url", mock.URL(),
		"--cooldown", "0.001",
		"--header-timeout", "30s",
		"--metrics-file", metricsFile,
		"wiki", "--guid", "fxehm", "--output-dir", out,
	}, stdout, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "Dumped 3 wiki pages")

	got, err := os.ReadFile(filepath.Join(out, "test1Ω≈ç√∫˜µ≤≥≥÷åß∂ƒ©˙∆∆˚¬…æ.md"))
	require.NoError(t, err)
	assert.Equal(t, "md549 data", string(got))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "osf_retries_total")
	assert.Contains(t, string(prom), "osf_items_written_total")
}

func TestMain_Run_Files(t *testing.T) {
	mock := testutil.NewMockOSF()
	defer mock.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("data/results.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("x,y\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	mock.SetFilesZip("fxehm", buf.Bytes())

	dir := t.TempDir()
	stdout := &bytes.Buffer{}

	err = main.NewMain().Run(context.Background(), []string{
		"--api-url", mock.URL(),
		"files", "--guid", "fxehm", "--directory", dir, "--token", "tok",
	}, stdout, &bytes.Buffer{})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "fxehm", "files", "data", "results.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x,y\n", string(got))
	assert.Equal(t, "Bearer tok", mock.LastRequestHeader().Get("Authorization"))
	assert.Contains(t, stdout.String(), "Extracted 1 files")
}

func TestMain_Run_WikiNotFound(t *testing.T) {
	mock := testutil.NewMockOSF()
	defer mock.Close()

	err := main.NewMain().Run(context.Background(), []string{
		"--api-url", mock.URL(),
		"wiki", "--guid", "zzzzz", "--output-dir", t.TempDir(),
	}, &bytes.Buffer{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestMain_Run_InvalidCooldown(t *testing.T) {
	err := main.NewMain().Run(context.Background(), []string{
		"--cooldown", "soon",
		"wiki", "--guid", "fxehm",
	}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid cooldown")
}

func TestMain_Run_InvalidLogLevel(t *testing.T) {
	err := main.NewMain().Run(context.Background(), []string{
		"--log-level", "trace",
		"wiki", "--guid", "fxehm",
	}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown log level")
}

func TestMain_Run_S3SinkRequiresBucket(t *testing.T) {
	t.Setenv("IA_BUCKET", "")

	err := main.NewMain().Run(context.Background(), []string{
		"wiki", "--guid", "fxehm", "--sink", "s3",
	}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "--bucket")
}
