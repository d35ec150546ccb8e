package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/orbitalpipe/granule-pipeline/config"
	"github.com/orbitalpipe/granule-pipeline/internal/metrics"
	"github.com/orbitalpipe/granule-pipeline/internal/xlog"
	"github.com/orbitalpipe/granule-pipeline/proxy"
	"github.com/orbitalpipe/granule-pipeline/queue"
	"github.com/orbitalpipe/granule-pipeline/record"
)

// loadParams reads paramsURI (if non-empty) and decodes it through
// config.Parse, matching the teacher's convert command's "empty
// config-uri gets a generic default" convention.
func loadParams(paramsURI string) (*config.Parameters, error) {
	if paramsURI == "" {
		return config.Parse(nil)
	}
	blob, err := os.ReadFile(paramsURI)
	if err != nil {
		return nil, err
	}
	return config.Parse(blob)
}

func newLogger(level string) *xlog.Logger {
	min := xlog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		min = xlog.LevelDebug
	case "warn":
		min = xlog.LevelWarn
	case "error":
		min = xlog.LevelError
	}
	return xlog.New(os.Stderr, "", min)
}

func subsetCommand() *cli.Command {
	return &cli.Command{
		Name:  "subset",
		Usage: "Subset one granule (and sample it, if the parameters attach raster sources).",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "archive-uri", Required: true, Usage: "URI or pathname to the archive to subset."},
			&cli.StringFlag{Name: "archive-config-uri", Usage: "URI or pathname to a vfsio config for opening the archive."},
			&cli.StringFlag{Name: "vfsio-config-uri", Usage: "URI or pathname to a vfsio config for opening raster sources."},
			&cli.StringFlag{Name: "params-uri", Usage: "URI or pathname to a JSON request-parameters blob."},
			&cli.StringFlag{Name: "out-uri", Required: true, Usage: "Pathname to write the output record stream to."},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error."},
		},
		Action: func(cCtx *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			log := newLogger(cCtx.String("log-level"))
			params, err := loadParams(cCtx.String("params-uri"))
			if err != nil {
				return err
			}

			metricsReg := metrics.NewRegistry(prometheus.NewRegistry())
			result, err := runGranule(ctx, cCtx.String("archive-uri"), cCtx.String("archive-config-uri"), cCtx.String("vfsio-config-uri"), params, metricsReg, log, cCtx.String("out-uri"))
			if err != nil {
				return err
			}
			log.Infof("subset: extents sent=%d dropped=%d retried=%d; samples sent=%d",
				result.Subset.ExtentsSent, result.Subset.ExtentsDropped, result.Subset.ExtentsRetried, result.Sample.SamplesSent)
			return nil
		},
	}
}

func proxyCommand() *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "Fan a multi-granule request out across orchestrated worker nodes.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "resources", Required: true, Usage: "Comma-separated list of resource (granule) URIs."},
			&cli.StringFlag{Name: "archive-config-uri", Usage: "URI or pathname to a vfsio config for opening each archive."},
			&cli.StringFlag{Name: "vfsio-config-uri", Usage: "URI or pathname to a vfsio config for opening raster sources."},
			&cli.StringFlag{Name: "params-uri", Usage: "URI or pathname to a JSON request-parameters blob."},
			&cli.StringFlag{Name: "out-uri", Required: true, Usage: "Pathname to write the merged output record stream to."},
			&cli.StringFlag{Name: "orchestrator-url", Required: true, Usage: "Base URL of the node lock/unlock orchestrator."},
			&cli.DurationFlag{Name: "lock-timeout", Usage: "Node lock hold timeout (default 10m)."},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error."},
		},
		Action: func(cCtx *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			log := newLogger(cCtx.String("log-level"))
			paramsURI := cCtx.String("params-uri")
			var paramsBlob []byte
			if paramsURI != "" {
				blob, err := os.ReadFile(paramsURI)
				if err != nil {
					return err
				}
				paramsBlob = blob
			}

			resources := strings.Split(cCtx.String("resources"), ",")
			for i := range resources {
				resources[i] = strings.TrimSpace(resources[i])
			}

			out := queue.New("proxy-out", 64, queue.OfConfidence)
			outSub := out.Subscribe()

			metricsReg := metrics.NewRegistry(prometheus.NewRegistry())
			archiveConfigURI := cCtx.String("archive-config-uri")
			vfsioConfigURI := cCtx.String("vfsio-config-uri")

			subReq := func(ctx context.Context, nodeURL, resource string, params *config.Parameters) error {
				log.Infof("proxy: dispatching %s to %s", resource, nodeURL)
				_, err := runGranuleForward(ctx, resource, archiveConfigURI, vfsioConfigURI, params, metricsReg, log, out)
				return err
			}

			done := make(chan error, 1)
			go func() {
				_, err := drainToFile(ctx, outSub, cCtx.String("out-uri"))
				done <- err
			}()

			reg := record.NewRegistry()
			stats, err := proxy.Run(ctx, proxy.Input{
				Resources:    resources,
				ParamsBlob:   paramsBlob,
				Out:          out,
				Orchestrator: proxy.NewHTTPLocker(cCtx.String("orchestrator-url"), nil),
				LockTimeout:  cCtx.Duration("lock-timeout"),
				Reg:          reg,
				SubRequest:   subReq,
				Log:          log,
			})
			if err != nil {
				return err
			}

			if drainErr := <-done; drainErr != nil {
				return drainErr
			}

			log.Infof("proxy: slots=%d succeeded=%d failed=%d", stats.SlotsTotal, stats.SlotsSucceeded, stats.SlotsFailed)
			return nil
		},
	}
}

func main() {
	app := &cli.App{
		Name:  "granulepipe",
		Usage: "Subset, sample, and fan out ICESat-2-style granule requests.",
		Commands: []*cli.Command{
			subsetCommand(),
			proxyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
