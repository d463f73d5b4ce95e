package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"valuepulse/internal/app"
	"valuepulse/internal/config"
	"valuepulse/internal/exporter"
	"valuepulse/internal/operations"
	"valuepulse/internal/pipeline"
	"valuepulse/internal/statistics"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

// --------------------------------------------------------------------------
// list
// --------------------------------------------------------------------------

func listCmd(opts *options) *cobra.Command {
	var steps bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPipelines(func(_ context.Context, _ *config.Config, p *app.Pipelines, _ *slog.Logger) error {
				if steps {
					for _, kind := range p.Env.Registry.Kinds() {
						fmt.Fprintln(cmd.OutOrStdout(), kind)
					}
					return nil
				}
				return printCatalog(cmd.OutOrStdout(), p.Catalog)
			})
		},
	}
	cmd.Flags().BoolVar(&steps, "steps", false, "list step kinds usable in pipeline definitions instead")
	return cmd
}

func printCatalog(out io.Writer, catalog *pipeline.Catalog) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDEPENDS ON\tPARAMS\tDESCRIPTION")
	for _, p := range catalog.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, orDash(p.DependsOn), orDash(p.Params), p.Description)
	}
	return tw.Flush()
}

func orDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ",")
}

// --------------------------------------------------------------------------
// run and its shortcuts
// --------------------------------------------------------------------------

func runCmd(opts *options) *cobra.Command {
	var (
		params   []string
		withDeps bool
	)
	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a catalog pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			return opts.execute(cmd.OutOrStdout(), operations.OperationRequest{
				Pipeline:         args[0],
				WithDependencies: withDeps,
				Parameters:       parsed,
			})
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "pipeline parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&withDeps, "with-deps", false, "run the pipelines it depends on first")
	return cmd
}

func splitCmd(opts *options) *cobra.Command {
	var (
		season int
		seed   uint64
	)
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split preprocessed forwards into train, validation and test sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if season > 0 {
				params["season"] = strconv.Itoa(season)
			}
			if cmd.Flags().Changed("seed") {
				params["seed"] = strconv.FormatUint(seed, 10)
			}
			return opts.execute(cmd.OutOrStdout(), operations.OperationRequest{
				Pipeline:   pipeline.SplitForwards,
				Parameters: params,
			})
		},
	}
	cmd.Flags().IntVar(&season, "season", 0, "season held out for validation and test (default from config)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "shuffle seed (default from config)")
	return cmd
}

func exportCmd(opts *options) *cobra.Command {
	var bucket, blob, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored table as a spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPipelines(func(ctx context.Context, cfg *config.Config, p *app.Pipelines, logger *slog.Logger) error {
				saver, err := exporter.NewSaver(exporter.Format(format),
					exporter.NewCSVWriter(p.Paths, logger),
					exporter.NewXLSXWriter(p.Paths, logger))
				if err != nil {
					return err
				}
				saver.Summary = true
				p.Env.Exporter = saver
				if err := runOperation(ctx, cmd.OutOrStdout(), cfg, p, logger, operations.OperationRequest{
					Pipeline:   pipeline.ExportXLSX,
					Parameters: map[string]string{"bucket": bucket, "blob": blob},
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "written to %s\n", p.Paths.ExportPath(saver.ExportName(bucket, blob)))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", storage.BucketPredictions, "source bucket")
	cmd.Flags().StringVar(&blob, "blob", pipeline.PredictionsBlob, "source blob")
	cmd.Flags().StringVar(&format, "format", string(exporter.FormatXLSX), "export format (xlsx or csv)")
	return cmd
}

func publishCmd(opts *options) *cobra.Command {
	var src, tableName string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Copy a stored table into the Postgres database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if src != "" {
				params["src"] = src
			}
			if tableName != "" {
				params["table"] = tableName
			}
			return opts.execute(cmd.OutOrStdout(), operations.OperationRequest{
				Pipeline:   pipeline.Publish,
				Parameters: params,
			})
		},
	}
	cmd.Flags().StringVar(&src, "src", "", "source as bucket/blob (default wage_vals_stats/standard.csv)")
	cmd.Flags().StringVar(&tableName, "table", "", "destination table (default from config)")
	return cmd
}

// execute opens the pipelines and runs one operation to completion
func (o *options) execute(out io.Writer, req operations.OperationRequest) error {
	return o.withPipelines(func(ctx context.Context, cfg *config.Config, p *app.Pipelines, logger *slog.Logger) error {
		return runOperation(ctx, out, cfg, p, logger, req)
	})
}

// runOperation goes through the operations manager so dependencies,
// retries and step timeouts behave as they do behind the API
func runOperation(ctx context.Context, out io.Writer, cfg *config.Config, p *app.Pipelines, logger *slog.Logger, req operations.OperationRequest) error {
	if _, ok := p.Catalog.Get(req.Pipeline); !ok {
		return fmt.Errorf("%w: %q (see 'pipeline list')", pipeline.ErrUnknownPipeline, req.Pipeline)
	}
	registry := operations.NewRegistry()
	if err := operations.RegisterCatalog(registry, p.Catalog, p.Env); err != nil {
		return err
	}
	manager := operations.NewManager(nil, registry, operations.FromPipelineConfig(cfg.Pipeline),
		operations.WithLogger(logger))

	resp, err := manager.Execute(ctx, req)
	if resp != nil {
		printResponse(out, resp)
	}
	return err
}

func printResponse(out io.Writer, resp *operations.OperationResponse) {
	ids := make([]string, 0, len(resp.Steps))
	for id := range resp.Steps {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := resp.Steps[ids[i]].StartTime, resp.Steps[ids[j]].StartTime
		switch {
		case a == nil && b == nil:
			return ids[i] < ids[j]
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tATTEMPTS\tROWS\tOUTPUTS")
	for _, id := range ids {
		s := resp.Steps[id]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", id, s.Status, s.Attempts, s.Rows, orDash(s.Outputs))
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "operation %s %s in %s\n", resp.ID, resp.Status, resp.Duration.Round(time.Millisecond))
	if resp.Error != "" {
		fmt.Fprintf(out, "error: %s\n", resp.Error)
	}
}

// parseParams turns key=value pairs into a parameter map
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q is not key=value", pair)
		}
		params[key] = strings.TrimSpace(value)
	}
	return params, nil
}

// --------------------------------------------------------------------------
// buckets
// --------------------------------------------------------------------------

func bucketsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "Manage storage buckets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create every bucket the pipelines use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPipelines(func(ctx context.Context, _ *config.Config, p *app.Pipelines, _ *slog.Logger) error {
				for _, bucket := range storage.Buckets {
					if err := p.Store.EnsureBucket(ctx, bucket); err != nil {
						return fmt.Errorf("bucket %s: %w", bucket, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s ready\n", bucket)
				}
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// model helpers
// --------------------------------------------------------------------------

func weightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weights <score>...",
		Short: "Turn model error scores into blending weights",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scores := make([]float64, len(args))
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("score %q is not a number", arg)
				}
				scores[i] = v
			}
			weights, err := statistics.CalculateWeights(scores)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tWEIGHT")
			for i := range scores {
				fmt.Fprintf(tw, "%g\t%.2f\n", scores[i], weights[i])
			}
			return tw.Flush()
		},
	}
}

func evaluateCmd(opts *options) *cobra.Command {
	var bucket, blob, truth, pred string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score stored predictions against actual market values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPipelines(func(ctx context.Context, cfg *config.Config, p *app.Pipelines, _ *slog.Logger) error {
				t, err := p.Store.Load(ctx, bucket, blob)
				if err != nil {
					return err
				}
				ev, err := evaluate(t, truth, pred, cfg.Pipeline.Seed)
				if err != nil {
					return err
				}
				ev.print(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", storage.BucketPredictions, "bucket holding predictions")
	cmd.Flags().StringVar(&blob, "blob", pipeline.PredictionsBlob, "blob holding predictions")
	cmd.Flags().StringVar(&truth, "truth", "market_value_euro_mill", "column with actual values")
	cmd.Flags().StringVar(&pred, "pred", "prediction", "column with predicted values")
	return cmd
}

type evaluation struct {
	Rows            int
	MAE, RMSE, R2   float64
	MAELow, MAEHigh float64
}

// evaluate scores rows that have both a true and a predicted value
func evaluate(t *table.Table, truth, pred string, seed uint64) (evaluation, error) {
	if err := t.Require(truth, pred); err != nil {
		return evaluation{}, err
	}
	var yTrue, yPred []float64
	for i := range t.Len() {
		row := t.RowAt(i)
		y, okY := row.Float(truth)
		p, okP := row.Float(pred)
		if okY && okP {
			yTrue = append(yTrue, y)
			yPred = append(yPred, p)
		}
	}

	ev := evaluation{Rows: len(yTrue)}
	var err error
	if ev.MAE, err = statistics.MAE(yTrue, yPred); err != nil {
		return evaluation{}, err
	}
	if ev.RMSE, err = statistics.RMSE(yTrue, yPred); err != nil {
		return evaluation{}, err
	}
	if ev.R2, err = statistics.R2(yTrue, yPred); err != nil {
		return evaluation{}, err
	}
	ci := statistics.DefaultIntervalOptions()
	ci.Seed = seed
	if ev.MAELow, ev.MAEHigh, err = statistics.MAEConfidenceInterval(yTrue, yPred, ci); err != nil {
		return evaluation{}, err
	}
	return ev, nil
}

func (e evaluation) print(out io.Writer) {
	fmt.Fprintf(out, "rows  %d\n", e.Rows)
	fmt.Fprintf(out, "mae   %.2f (95%% CI %.2f-%.2f)\n", e.MAE, e.MAELow, e.MAEHigh)
	fmt.Fprintf(out, "rmse  %.2f\n", e.RMSE)
	fmt.Fprintf(out, "r2    %.3f\n", e.R2)
}
