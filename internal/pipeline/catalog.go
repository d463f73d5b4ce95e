package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"valuepulse/internal/cleaning"
	"valuepulse/internal/processing"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

// Pipeline names
const (
	CleanFbref         = "clean-fbref"
	CleanWages         = "clean-wages"
	CleanTransfermarkt = "clean-transfermarkt"
	JoinWagesValuesRun = "join-wages-values"
	JoinForwards       = "join-forwards"
	JoinStandard       = "join-standard"
	PreprocessForwards = "preprocess-forwards"
	SplitForwards      = "split"
	ExportXLSX         = "export-xlsx"
	Publish            = "publish"
	RunDefinition      = "run-definition"
)

// Blobs read or written only by catalog pipelines
const (
	PreprocessedForwardsBlob = "preprocessed_forwards.csv"
	PredictionsBlob          = "attacking_predictions.csv"
	// PlayerIDsBlob is the fbref_db table whose players define player_id
	PlayerIDsBlob = "standard.csv"
)

var (
	// ErrUnknownPipeline is returned for names missing from the catalog
	ErrUnknownPipeline = errors.New("unknown pipeline")
	// ErrMissingDependency is returned when an Env lacks what a pipeline needs
	ErrMissingDependency = errors.New("missing pipeline dependency")
)

// Env carries what catalog pipelines run against
type Env struct {
	Store    storage.Store
	Exporter storage.Saver
	// Publisher receives the publish pipeline's table, usually Postgres
	Publisher     storage.Saver
	PublishSchema string
	PublishTable  string

	Registry    *processing.Registry
	FIFACodes   func(ctx context.Context) (map[string]string, error)
	Definitions string

	SplitSeason int
	Seed        uint64
	Concurrency int
	Options     []processing.Option
	Logger      *slog.Logger
}

// Params are string parameters passed to one pipeline run
type Params map[string]string

// Get returns the value of key or def when unset
func (p Params) Get(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

// Int parses key as an integer, returning def when unset
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", processing.ErrInvalidParams, key, v)
	}
	return n, nil
}

// Result describes what a pipeline run produced
type Result struct {
	Outputs []Location
	Rows    int
}

func (r *Result) add(loc Location, rows int) {
	r.Outputs = append(r.Outputs, loc)
	r.Rows += rows
}

// RunFunc executes a pipeline
type RunFunc func(ctx context.Context, env *Env, params Params) (Result, error)

// Pipeline is a named, runnable unit of work
type Pipeline struct {
	Name        string
	Description string
	DependsOn   []string
	Params      []string
	Run         RunFunc
}

// Catalog holds pipelines in registration order
type Catalog struct {
	mu        sync.RWMutex
	pipelines map[string]Pipeline
	order     []string
}

// NewCatalog returns a catalog holding the built-in pipelines
func NewCatalog() *Catalog {
	c := &Catalog{pipelines: make(map[string]Pipeline)}
	for _, p := range builtins() {
		// builtins have unique names
		_ = c.Register(p)
	}
	return c
}

// Register adds a pipeline. Names must be unique and dependencies must
// already be registered.
func (c *Catalog) Register(p Pipeline) error {
	if p.Name == "" || p.Run == nil {
		return fmt.Errorf("%w: pipeline needs a name and a run function", processing.ErrInvalidParams)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pipelines[p.Name]; exists {
		return fmt.Errorf("pipeline %s already registered", p.Name)
	}
	for _, dep := range p.DependsOn {
		if _, ok := c.pipelines[dep]; !ok {
			return fmt.Errorf("%w: %s depends on %s", ErrUnknownPipeline, p.Name, dep)
		}
	}
	c.pipelines[p.Name] = p
	c.order = append(c.order, p.Name)
	return nil
}

// Get returns a pipeline by name
func (c *Catalog) Get(name string) (Pipeline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pipelines[name]
	return p, ok
}

// List returns pipelines in registration order
func (c *Catalog) List() []Pipeline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Pipeline, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.pipelines[name])
	}
	return out
}

// Run executes a single pipeline without its dependencies
func (c *Catalog) Run(ctx context.Context, name string, env *Env, params Params) (Result, error) {
	p, ok := c.Get(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}
	if env == nil || env.Store == nil {
		return Result{}, fmt.Errorf("%w: %s needs a store", ErrMissingDependency, name)
	}
	return p.Run(ctx, env, params)
}

func builtins() []Pipeline {
	return []Pipeline{
		{
			Name:        CleanFbref,
			Description: "clean fbref stat tables into processed_fbref_db",
			Params:      []string{"blob"},
			Run:         runCleanFbref,
		},
		{
			Name:        CleanWages,
			Description: "clean fbref wage tables into processed_fbref_db",
			Params:      []string{"league"},
			Run:         runCleanWages,
		},
		{
			Name:        CleanTransfermarkt,
			Description: "clean transfermarkt player and team tables into processed_transfermarkt_db",
			Params:      []string{"league"},
			Run:         runCleanTransfermarkt,
		},
		{
			Name:        JoinWagesValuesRun,
			Description: "join each league's wages with its valuations and stack the leagues",
			DependsOn:   []string{CleanWages, CleanTransfermarkt},
			Params:      []string{"league"},
			Run:         runJoinWagesValues,
		},
		{
			Name:        JoinForwards,
			Description: "join attacking stats with wages and valuations",
			DependsOn:   []string{JoinWagesValuesRun, CleanFbref},
			Run: func(ctx context.Context, env *Env, _ Params) (Result, error) {
				return single(ForwardsStats(ctx, env.joinDeps()))(storage.BucketWageValsStats, ForwardsBlob)
			},
		},
		{
			Name:        JoinStandard,
			Description: "join standard stats with wages and valuations",
			DependsOn:   []string{JoinWagesValuesRun, CleanFbref},
			Run: func(ctx context.Context, env *Env, _ Params) (Result, error) {
				return single(StandardStatsJoin(ctx, env.joinDeps()))(storage.BucketWageValsStats, StandardBlob)
			},
		},
		{
			Name:        PreprocessForwards,
			Description: "impute and drop columns for the forwards model",
			DependsOn:   []string{JoinForwards},
			Run:         runPreprocessForwards,
		},
		{
			Name:        SplitForwards,
			Description: "split preprocessed forwards into train, validation and test sets",
			DependsOn:   []string{PreprocessForwards},
			Params:      []string{"season", "seed", "blob"},
			Run:         runSplit,
		},
		{
			Name:        ExportXLSX,
			Description: "export a stored table to the exports directory",
			Params:      []string{"bucket", "blob"},
			Run:         runExport,
		},
		{
			Name:        Publish,
			Description: "publish a stored table to the player stats database table",
			DependsOn:   []string{JoinStandard},
			Params:      []string{"src", "table"},
			Run:         runPublish,
		},
		{
			Name:        RunDefinition,
			Description: "run a YAML pipeline definition from src to dst",
			Params:      []string{"definition", "src", "dst"},
			Run:         runDefinition,
		},
	}
}

func single(t *table.Table, err error) func(bucket, blob string) (Result, error) {
	return func(bucket, blob string) (Result, error) {
		if err != nil {
			return Result{}, err
		}
		var res Result
		res.add(Location{Bucket: bucket, Blob: blob}, t.Len())
		return res, nil
	}
}

func (e *Env) joinDeps() JoinDeps {
	return JoinDeps{Store: e.Store, Concurrency: e.Concurrency, Options: e.Options, Logger: e.Logger}
}

func (e *Env) processor(name string, steps []processing.Processor) *DataProcessor {
	return &DataProcessor{
		Name:       name,
		Loader:     e.Store,
		Saver:      e.Store,
		Processors: steps,
		Options:    e.Options,
		Logger:     e.Logger,
	}
}

// forEachBlob runs fn over blobs with bounded concurrency. Outputs keep
// the order of blobs.
func (e *Env) forEachBlob(ctx context.Context, blobs []string, fn func(ctx context.Context, blob string) (Location, int, error)) (Result, error) {
	locs := make([]Location, len(blobs))
	rows := make([]int, len(blobs))
	g, ctx := errgroup.WithContext(ctx)
	if e.Concurrency > 0 {
		g.SetLimit(e.Concurrency)
	} else {
		g.SetLimit(1)
	}
	for i, blob := range blobs {
		g.Go(func() error {
			loc, n, err := fn(ctx, blob)
			if err != nil {
				return err
			}
			locs[i], rows[i] = loc, n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	var res Result
	for i := range locs {
		res.add(locs[i], rows[i])
	}
	return res, nil
}

func listMatching(ctx context.Context, lister storage.Lister, bucket, contains, notContains string) ([]string, error) {
	names, err := lister.List(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	blobs := storage.Match(names, contains, notContains)
	if len(blobs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoBlobs, bucket)
	}
	return blobs, nil
}

func processedName(blob string) string { return "processed_" + blob }

func runCleanFbref(ctx context.Context, env *Env, params Params) (Result, error) {
	if env.FIFACodes == nil {
		return Result{}, fmt.Errorf("%w: %s needs FIFA codes", ErrMissingDependency, CleanFbref)
	}
	blobs, err := listMatching(ctx, env.Store, storage.BucketFbref, "", "wages")
	if err != nil {
		return Result{}, err
	}
	if only := params.Get("blob", ""); only != "" {
		blobs = storage.Filter(blobs, []string{only}, nil)
		if len(blobs) == 0 {
			return Result{}, fmt.Errorf("%w: %s in %s", storage.ErrNotFound, only, storage.BucketFbref)
		}
	}
	codes, err := env.FIFACodes(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load FIFA codes: %w", err)
	}
	ids, err := env.playerIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	teamSteps, err := cleaning.Steps(cleaning.FbrefStats, "", cleaning.Resources{FIFACodes: codes})
	if err != nil {
		return Result{}, err
	}
	playerSteps, err := cleaning.Steps(cleaning.FbrefStats, "", cleaning.Resources{FIFACodes: codes, PlayerIDs: ids})
	if err != nil {
		return Result{}, err
	}
	return env.forEachBlob(ctx, blobs, func(ctx context.Context, blob string) (Location, int, error) {
		steps := playerSteps
		if strings.Contains(blob, "team") {
			steps = teamSteps
		}
		dst := Location{Bucket: storage.BucketProcessedFbref, Blob: processedName(blob)}
		t, err := env.processor(CleanFbref, steps).Run(ctx, Location{Bucket: storage.BucketFbref, Blob: blob}, dst)
		if err != nil {
			return Location{}, 0, err
		}
		return dst, t.Len(), nil
	})
}

// playerIDs numbers the players of fbref_db/standard.csv
func (env *Env) playerIDs(ctx context.Context) (map[string]int, error) {
	t, err := env.Store.Load(ctx, storage.BucketFbref, PlayerIDsBlob)
	if err != nil {
		return nil, fmt.Errorf("failed to load player ids from %s/%s: %w", storage.BucketFbref, PlayerIDsBlob, err)
	}
	names, err := t.Column("player")
	if err != nil {
		return nil, fmt.Errorf("player ids from %s: %w", PlayerIDsBlob, err)
	}
	ids := cleaning.BuildPlayerIDs(names)
	loggerOr(env.Logger).InfoContext(ctx, "numbered players", slog.Int("players", len(ids)))
	return ids, nil
}

// wagesLeague returns the league of a wages blob such as
// "Premier-League-wages.csv"
func wagesLeague(blob string) string {
	prefix, _, _ := strings.Cut(strings.TrimSuffix(blob, ".csv"), "-wages")
	if pair, ok := FindLeaguePair(prefix); ok {
		return pair.Value
	}
	return ""
}

// playersLeague returns the league of a valuations blob such as
// "la_liga_player_valuations.csv"
func playersLeague(blob string) string {
	prefix, _, _ := strings.Cut(blob, "_player")
	return prefix
}

func keepLeague(blobs []string, league string, leagueOf func(string) string) []string {
	if league == "" {
		return blobs
	}
	want := league
	if pair, ok := FindLeaguePair(league); ok {
		want = pair.Value
	}
	var out []string
	for _, b := range blobs {
		if leagueOf(b) == want {
			out = append(out, b)
		}
	}
	return out
}

func runCleanWages(ctx context.Context, env *Env, params Params) (Result, error) {
	blobs, err := listMatching(ctx, env.Store, storage.BucketFbref, "wages", "")
	if err != nil {
		return Result{}, err
	}
	blobs = keepLeague(blobs, params.Get("league", ""), wagesLeague)
	if len(blobs) == 0 {
		return Result{}, fmt.Errorf("%w for league %s", ErrNoBlobs, params.Get("league", ""))
	}
	return env.forEachBlob(ctx, blobs, func(ctx context.Context, blob string) (Location, int, error) {
		league := wagesLeague(blob)
		steps, err := cleaning.Steps(cleaning.FbrefWages, league, cleaning.Resources{})
		if err != nil {
			return Location{}, 0, err
		}
		steps = append([]processing.Processor{withLeague(league)}, steps...)
		dst := Location{Bucket: storage.BucketProcessedFbref, Blob: processedName(blob)}
		t, err := env.processor(CleanWages, steps).Run(ctx, Location{Bucket: storage.BucketFbref, Blob: blob}, dst)
		if err != nil {
			return Location{}, 0, err
		}
		return dst, t.Len(), nil
	})
}

// withLeague adds a constant league column when the table has none
func withLeague(league string) processing.Processor {
	return processing.Func{StepName: "with_league", Fn: func(_ context.Context, t *table.Table) (*table.Table, error) {
		out := t.Clone()
		if league != "" && !out.HasColumn("league") {
			out.AddColumn("league", league)
		}
		return out, nil
	}}
}

func runCleanTransfermarkt(ctx context.Context, env *Env, params Params) (Result, error) {
	logger := loggerOr(env.Logger)
	players, err := listMatching(ctx, env.Store, storage.BucketTransfermarkt, "player", "")
	if err != nil {
		return Result{}, err
	}
	tables, err := loadAll(ctx, env.Store, storage.BucketTransfermarkt, players, env.Concurrency)
	if err != nil {
		return Result{}, err
	}

	ids, err := env.playerIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	res := cleaning.Resources{PlayerIDs: ids}

	league := params.Get("league", "")
	byBlob := make(map[string]*table.Table, len(players))
	for i, blob := range players {
		byBlob[blob] = tables[i]
	}
	selected := keepLeague(players, league, playersLeague)

	out, err := env.forEachBlob(ctx, selected, func(ctx context.Context, blob string) (Location, int, error) {
		lg := playersLeague(blob)
		steps, err := cleaning.Steps(cleaning.TransfermarktPlayers, lg, res)
		if err != nil {
			return Location{}, 0, err
		}
		steps = append([]processing.Processor{withLeague(lg)}, steps...)
		t, err := compose(ctx, CleanTransfermarkt+"_"+lg, steps, env.Options, byBlob[blob])
		if err != nil {
			return Location{}, 0, err
		}
		dst := Location{Bucket: storage.BucketProcessedTransfermarkt, Blob: processedName(blob)}
		if err := env.Store.Save(ctx, t, dst.Bucket, dst.Blob); err != nil {
			return Location{}, 0, fmt.Errorf("failed to save %s: %w", dst, err)
		}
		return dst, t.Len(), nil
	})
	if err != nil {
		return Result{}, err
	}

	teams, err := listMatching(ctx, env.Store, storage.BucketTransfermarkt, "team", "player")
	if errors.Is(err, ErrNoBlobs) {
		logger.WarnContext(ctx, "no transfermarkt team tables")
		return out, nil
	}
	if err != nil {
		return Result{}, err
	}
	teamSteps, err := cleaning.Steps(cleaning.TransfermarktTeams, "", res)
	if err != nil {
		return Result{}, err
	}
	teamRes, err := env.forEachBlob(ctx, keepLeague(teams, league, playersLeague), func(ctx context.Context, blob string) (Location, int, error) {
		dst := Location{Bucket: storage.BucketProcessedTransfermarkt, Blob: processedName(blob)}
		t, err := env.processor(CleanTransfermarkt, teamSteps).Run(ctx, Location{Bucket: storage.BucketTransfermarkt, Blob: blob}, dst)
		if err != nil {
			return Location{}, 0, err
		}
		return dst, t.Len(), nil
	})
	if err != nil {
		return Result{}, err
	}
	out.Outputs = append(out.Outputs, teamRes.Outputs...)
	out.Rows += teamRes.Rows
	return out, nil
}

func runJoinWagesValues(ctx context.Context, env *Env, params Params) (Result, error) {
	pairs := LeaguePairs
	if league := params.Get("league", ""); league != "" {
		pair, ok := FindLeaguePair(league)
		if !ok {
			return Result{}, fmt.Errorf("%w: unknown league %s", processing.ErrInvalidParams, league)
		}
		pairs = []LeaguePair{pair}
	}
	join := &ValueWageJoin{Loader: env.Store, Saver: env.Store, Options: env.Options, Logger: env.Logger}
	res, err := join.Run(ctx, pairs)
	if err != nil {
		return Result{}, err
	}
	all, err := AllValuesWages(ctx, env.joinDeps())
	if err != nil {
		return Result{}, err
	}
	res.add(Location{Bucket: storage.BucketJoinedWagesValues, Blob: TopFiveBlob}, all.Len())
	return res, nil
}

func runPreprocessForwards(ctx context.Context, env *Env, _ Params) (Result, error) {
	dst := Location{Bucket: storage.BucketWageValsStats, Blob: PreprocessedForwardsBlob}
	t, err := env.processor("forwards_preprocessor", processing.ForwardsSteps()).
		Run(ctx, Location{Bucket: storage.BucketWageValsStats, Blob: ForwardsBlob}, dst)
	return single(t, err)(dst.Bucket, dst.Blob)
}

func runSplit(ctx context.Context, env *Env, params Params) (Result, error) {
	season, err := params.Int("season", env.SplitSeason)
	if err != nil {
		return Result{}, err
	}
	if season <= 0 {
		return Result{}, fmt.Errorf("%w: split needs a season", processing.ErrInvalidParams)
	}
	seed := env.Seed
	if v := params.Get("seed", ""); v != "" {
		if seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return Result{}, fmt.Errorf("%w: seed=%q", processing.ErrInvalidParams, v)
		}
	}
	if seed == 0 {
		seed = DefaultSplitSeed
	}

	src := Location{Bucket: storage.BucketWageValsStats, Blob: params.Get("blob", PreprocessedForwardsBlob)}
	t, err := env.Store.Load(ctx, src.Bucket, src.Blob)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load %s: %w", src, err)
	}
	split, err := TrainValidTestSplit(t, SplitOptions{Season: season, Seed: seed})
	if err != nil {
		return Result{}, err
	}
	if err := split.Save(ctx, env.Store, season); err != nil {
		return Result{}, err
	}
	train, valid, test, validTest := SplitBlobs(season)
	var res Result
	res.add(Location{Bucket: storage.BucketTraining, Blob: train}, split.Train.Len())
	res.add(Location{Bucket: storage.BucketValidation, Blob: valid}, split.Valid.Len())
	res.add(Location{Bucket: storage.BucketTest, Blob: test}, split.Test.Len())
	res.add(Location{Bucket: storage.BucketTest, Blob: validTest}, split.ValidTest.Len())
	loggerOr(env.Logger).InfoContext(ctx, "split saved",
		slog.Int("season", season),
		slog.Int("train", split.Train.Len()),
		slog.Int("valid", split.Valid.Len()),
		slog.Int("test", split.Test.Len()))
	return res, nil
}

func runExport(ctx context.Context, env *Env, params Params) (Result, error) {
	if env.Exporter == nil {
		return Result{}, fmt.Errorf("%w: %s needs an exporter", ErrMissingDependency, ExportXLSX)
	}
	src := Location{
		Bucket: params.Get("bucket", storage.BucketPredictions),
		Blob:   params.Get("blob", PredictionsBlob),
	}
	p := &DataProcessor{Name: ExportXLSX, Loader: env.Store, Saver: env.Exporter, Logger: env.Logger}
	t, err := p.Run(ctx, src, src)
	return single(t, err)(src.Bucket, src.Blob)
}

func runPublish(ctx context.Context, env *Env, params Params) (Result, error) {
	if env.Publisher == nil {
		return Result{}, fmt.Errorf("%w: %s needs a database", ErrMissingDependency, Publish)
	}
	src, err := ParseLocation(params.Get("src", storage.BucketWageValsStats+"/"+StandardBlob))
	if err != nil {
		return Result{}, err
	}
	dst := Location{Bucket: env.PublishSchema, Blob: params.Get("table", env.PublishTable)}
	if !dst.Set() {
		return Result{}, fmt.Errorf("%w: publish needs a schema and a table", processing.ErrInvalidParams)
	}
	p := &DataProcessor{Name: Publish, Loader: env.Store, Saver: env.Publisher, Logger: env.Logger}
	t, err := p.Run(ctx, src, dst)
	return single(t, err)(dst.Bucket, dst.Blob)
}

// ParseLocation splits "bucket/blob"
func ParseLocation(s string) (Location, error) {
	bucket, blob, ok := strings.Cut(s, "/")
	loc := Location{Bucket: bucket, Blob: blob}
	if !ok || !loc.Set() {
		return Location{}, fmt.Errorf("%w: location %q is not bucket/blob", processing.ErrInvalidParams, s)
	}
	return loc, nil
}

func runDefinition(ctx context.Context, env *Env, params Params) (Result, error) {
	name := params.Get("definition", "")
	if name == "" {
		return Result{}, fmt.Errorf("%w: definition is required", processing.ErrInvalidParams)
	}
	if filepath.Ext(name) == "" {
		name += ".yaml"
	}
	if filepath.Base(name) != name {
		return Result{}, fmt.Errorf("%w: definition %q must be a file name", processing.ErrInvalidParams, name)
	}
	def, err := processing.LoadDefinition(filepath.Join(env.Definitions, name))
	if err != nil {
		return Result{}, err
	}
	reg := env.Registry
	if reg == nil {
		reg = processing.NewRegistry()
	}
	composer, err := reg.BuildDefinition(def, env.Options...)
	if err != nil {
		return Result{}, err
	}

	src, err := ParseLocation(params.Get("src", ""))
	if err != nil {
		return Result{}, err
	}
	var dst Location
	if v := params.Get("dst", ""); v != "" {
		if dst, err = ParseLocation(v); err != nil {
			return Result{}, err
		}
	}
	t, err := env.processor(def.Name, composer.Steps()).Run(ctx, src, dst)
	if err != nil {
		return Result{}, err
	}
	var res Result
	if dst.Set() {
		res.add(dst, t.Len())
	} else {
		res.Rows = t.Len()
	}
	return res, nil
}
