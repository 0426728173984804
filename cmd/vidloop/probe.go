package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/user/vidloop/pkg/adapters/osfilesystem"
	"github.com/user/vidloop/pkg/adapters/smartdecoder"
	"github.com/user/vidloop/pkg/ports"
	"github.com/user/vidloop/pkg/selector"
	"github.com/user/vidloop/pkg/summarizer"
)

func probeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "format",
			Aliases:  []string{"f"},
			Value:    "markdown",
			Usage:    l10n.T("Report format (markdown, yaml)"),
			Category: l10n.T("Output"),
		},
		&cli.StringFlag{
			Name:     "output",
			Aliases:  []string{"o"},
			Usage:    l10n.T("Write the report to this path instead of stdout"),
			Category: l10n.T("Output"),
		},
		&cli.IntFlag{
			Name:     "jobs",
			Aliases:  []string{"j"},
			Usage:    l10n.T("Number of files probed in parallel (default: number of CPUs)"),
			Category: l10n.T("Output"),
		},
	}

	return &cli.Command{
		Name:        "probe",
		Usage:       l10n.T("Report the streams of video files"),
		Description: l10n.T("List the streams of each FILE, the stream playback would select and the decoder that would serve it."),
		ArgsUsage:   "FILE...",
		Flags:       append(flags, backendFlags()...),
		Action:      runProbe,
	}
}

func runProbe(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit(l10n.T("No input file given"), 2)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	var formatter summarizer.Formatter
	switch c.String("format") {
	case "markdown", "md":
		formatter = summarizer.NewMarkdownFormatter()
	case "yaml", "yml":
		formatter = summarizer.NewYAMLFormatter()
	default:
		return cli.Exit(l10n.F("Unknown report format %q", c.String("format")), 2)
	}

	log := newLogger(c, cfg)
	fs := osfilesystem.New()
	demuxer, decoders, err := newBackends(cfg, fs, log)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	paths := c.Args().Slice()
	reports := make([]summarizer.FileReport, len(paths))
	failures := make([]error, len(paths))

	jobs := c.Int("jobs")
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	g, _ := errgroup.WithContext(c.Context)
	g.SetLimit(jobs)
	for i, path := range paths {
		g.Go(func() error {
			reports[i], failures[i] = probeFile(demuxer, decoders, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	builder := summarizer.NewBuilder()
	failed := 0
	for i, path := range paths {
		if failures[i] != nil {
			failed++
			log.Error("Failed to probe %s: %s", path, failures[i])
			builder.WithError(path, failures[i])
			continue
		}
		builder.WithFile(reports[i])
	}
	summary := builder.Build()

	writer := summarizer.NewWriter(formatter, fs)
	if out := c.String("output"); out != "" {
		err = writer.Write(out, summary)
	} else {
		err = writer.WriteTo(os.Stdout, summary)
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if failed > 0 {
		return cli.Exit(l10n.F("%d of %d files could not be probed", failed, len(paths)), 1)
	}
	return nil
}

// probeFile reports the streams of one file. A file whose streams can be
// read but which has no decodable video stream still yields a report, with
// Selected left at -1.
func probeFile(demuxer ports.Demuxer, decoders *smartdecoder.Provider, path string) (summarizer.FileReport, error) {
	container, err := demuxer.Open(path)
	if err != nil {
		return summarizer.FileReport{}, err
	}
	defer container.Close()

	info, err := container.Probe()
	if err != nil {
		return summarizer.FileReport{}, err
	}
	if info.Path == "" {
		info.Path = path
	}
	report := summarizer.FileFromInfo(info)

	sel, err := selector.SelectBestStream(info, ports.MediaTypeVideo, decoders)
	if err != nil {
		report.Decoder = fmt.Sprintf("none (%s)", err)
		return report, nil
	}
	report.Selected = sel.Index
	if d, err := decoders.Describe(sel.Stream); err == nil {
		report.Decoder = d.Decoder
	}
	return report, nil
}
