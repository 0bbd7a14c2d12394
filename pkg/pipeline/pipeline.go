// Package pipeline runs the full seed-selection job: partitioning, edge
// weighting and seed selection on the coordinator, influence propagation on
// every worker of a cluster.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/influence-seeding/pkg/cluster"
	"github.com/gilchrisn/influence-seeding/pkg/config"
	"github.com/gilchrisn/influence-seeding/pkg/graph"
	"github.com/gilchrisn/influence-seeding/pkg/influence"
	"github.com/gilchrisn/influence-seeding/pkg/metrics"
	"github.com/gilchrisn/influence-seeding/pkg/partition"
	"github.com/gilchrisn/influence-seeding/pkg/seeds"
	"github.com/gilchrisn/influence-seeding/pkg/store"
)

var (
	// ErrInput wraps every error caused by bad input or parameters.
	ErrInput = errors.New("input error")
	// ErrInvariant wraps internal consistency failures.
	ErrInvariant = errors.New("invariant violation")
)

// Options configures a run.
type Options struct {
	K           int
	Workers     int
	Strict      bool
	Propagation influence.Options
}

// DefaultOptions returns k=5, 4 workers, strict verification and the
// default propagation options.
func DefaultOptions() Options {
	return Options{
		K:           5,
		Workers:     4,
		Strict:      true,
		Propagation: influence.DefaultOptions(),
	}
}

// FromConfig builds Options from configuration values.
func FromConfig(cfg *config.Config) (Options, error) {
	mode, err := influence.ParseMode(cfg.Mode())
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrInput, err)
	}
	opts := Options{
		K:       cfg.K(),
		Workers: cfg.Workers(),
		Strict:  cfg.Strict(),
		Propagation: influence.Options{
			Damping:       cfg.Damping(),
			Tolerance:     cfg.Tolerance(),
			MaxIterations: cfg.MaxIterations(),
			Epsilon:       cfg.Epsilon(),
			Mode:          mode,
			Threads:       cfg.Threads(),
		},
	}
	return opts, opts.Validate()
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInput, o.Workers)
	}
	if err := o.Propagation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInput, err)
	}
	return nil
}

// Params flattens the options for archiving and reporting.
func (o Options) Params() map[string]any {
	return map[string]any{
		"k":              o.K,
		"workers":        o.Workers,
		"threads":        o.Propagation.Threads,
		"strict":         o.Strict,
		"mode":           string(o.Propagation.Mode),
		"damping":        o.Propagation.Damping,
		"tolerance":      o.Propagation.Tolerance,
		"max_iterations": o.Propagation.MaxIterations,
		"epsilon":        o.Propagation.Epsilon,
	}
}

// Stats collects the per-stage statistics of a run.
type Stats struct {
	Partition   partition.Statistics `json:"partition"`
	Propagation influence.Stats      `json:"propagation"`
	Selection   seeds.Stats          `json:"selection"`
	RuntimeMS   int64                `json:"runtime_ms"`
}

// Result is the output of one run.
type Result struct {
	RunID     string            `json:"run_id"`
	CreatedAt time.Time         `json:"created_at"`
	Options   Options           `json:"-"`
	Nodes     int               `json:"nodes"`
	Edges     int               `json:"edges"`
	Partition *partition.Result `json:"partition"`
	Influence []float64         `json:"-"`
	Seeds     []seeds.Seed      `json:"seeds"`
	Stats     Stats             `json:"stats"`
}

// job is what the coordinator prepares and broadcasts before propagation.
type job struct {
	part            *partition.Result
	sched           *influence.Schedule
	psiOut          []float64
	personalization []float64
}

// Run executes the pipeline on g and interests. Edge weights are written
// into g.
func Run(ctx context.Context, g *graph.CSRGraph, interests *graph.InterestMatrix, opts Options, logger zerolog.Logger) (*Result, error) {
	res, err := run(ctx, g, interests, opts, logger)
	err = classify(err)
	metrics.RunsTotal.WithLabelValues(status(err)).Inc()
	if err != nil {
		logger.Error().Err(err).Msg("Pipeline failed")
		return nil, err
	}
	return res, nil
}

func run(ctx context.Context, g *graph.CSRGraph, interests *graph.InterestMatrix, opts Options, logger zerolog.Logger) (*Result, error) {
	startTime := time.Now()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if interests.N() != g.N {
		return nil, fmt.Errorf("%w: %w: %d interest rows for %d nodes",
			ErrInput, graph.ErrInterestDimension, interests.N(), g.N)
	}

	res := &Result{
		RunID:     uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Options:   opts,
		Nodes:     g.N,
		Edges:     g.NumEdges(),
	}
	logger = logger.With().Str("run_id", res.RunID).Logger()
	logger.Info().
		Int("nodes", g.N).
		Int("edges", g.NumEdges()).
		Int("workers", opts.Workers).
		Str("mode", string(opts.Propagation.Mode)).
		Int("k", opts.K).
		Msg("Starting pipeline")

	popts := opts.Propagation
	err := cluster.Run(ctx, opts.Workers, func(ctx context.Context, comm *cluster.Comm) error {
		wlog := logger.With().Int("rank", comm.Rank()).Logger()

		var prepared *job
		var parts [][]influence.Span
		if comm.IsCoordinator() {
			var err error
			prepared, parts, err = prepare(ctx, g, interests, opts, comm.Size(), wlog)
			if err != nil {
				return err
			}
			res.Partition = prepared.part
			res.Stats.Partition = prepared.part.Statistics
		}

		shared, err := cluster.Broadcast(ctx, comm, cluster.CoordinatorRank, prepared)
		if err != nil {
			return err
		}

		stageStart := time.Now()
		p := influence.NewPropagator(g, shared.psiOut, popts, wlog)
		var ip []float64
		var pstats influence.Stats
		switch popts.Mode {
		case influence.ModeFlat:
			ip, pstats, err = p.RunFlat(ctx, comm, shared.personalization)
		default:
			spans, serr := cluster.Scatter(ctx, comm, cluster.CoordinatorRank, parts)
			if serr != nil {
				return serr
			}
			ip, pstats, err = p.RunLeveled(ctx, comm, shared.sched, spans)
		}
		if err != nil {
			return err
		}
		if !comm.IsCoordinator() {
			return nil
		}

		observe("propagate", stageStart)
		metrics.PropagationIterations.WithLabelValues(string(popts.Mode)).Add(float64(pstats.Iterations))
		wlog.Info().
			Str("mode", string(pstats.Mode)).
			Int("iterations", pstats.Iterations).
			Bool("converged", pstats.Converged).
			Int64("runtime_ms", pstats.RuntimeMS).
			Msg("Propagation completed")
		res.Influence = ip
		res.Stats.Propagation = pstats

		stageStart = time.Now()
		chosen, sstats, err := seeds.Select(ctx, g, ip, seeds.Options{K: opts.K, Threads: popts.Threads}, wlog)
		if err != nil {
			return err
		}
		observe("select", stageStart)
		res.Seeds = chosen
		res.Stats.Selection = sstats
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.Stats.RuntimeMS = time.Since(startTime).Milliseconds()
	recordSizes(res)
	logger.Info().
		Int("seeds", len(res.Seeds)).
		Int64("runtime_ms", res.Stats.RuntimeMS).
		Msg("Pipeline completed")
	return res, nil
}

// prepare runs the coordinator-only stages and splits the schedule among
// size workers.
func prepare(ctx context.Context, g *graph.CSRGraph, interests *graph.InterestMatrix, opts Options, size int, logger zerolog.Logger) (*job, [][]influence.Span, error) {
	threads := opts.Propagation.Threads

	stageStart := time.Now()
	part, err := partition.Compute(ctx, g, partition.Options{Threads: threads}, logger)
	if err != nil {
		return nil, nil, err
	}
	if opts.Strict {
		if err := part.Verify(g); err != nil {
			return nil, nil, err
		}
	}
	observe("partition", stageStart)

	j := &job{part: part}
	var spans [][]influence.Span

	stageStart = time.Now()
	switch opts.Propagation.Mode {
	case influence.ModeFlat:
		j.personalization = influence.Personalization(interests)
	default:
		j.psiOut, err = influence.ComputeWeights(ctx, g, interests, threads)
		if err != nil {
			return nil, nil, err
		}
		j.sched = influence.NewSchedule(part)
		spans, err = j.sched.Assign(size)
		if err != nil {
			return nil, nil, err
		}
	}
	observe("weights", stageStart)
	return j, spans, nil
}

// RunFiles loads the edge list and interest CSV, then calls Run.
func RunFiles(ctx context.Context, graphPath, interestPath string, opts Options, logger zerolog.Logger) (*Result, error) {
	stageStart := time.Now()
	g, err := graph.LoadEdgeListFile(ctx, graphPath, opts.Propagation.Threads)
	if err != nil {
		return nil, countFailure(fmt.Errorf("%w: %w", ErrInput, err))
	}
	interests, err := graph.LoadInterestsFile(interestPath, g.N)
	if err != nil {
		return nil, countFailure(fmt.Errorf("%w: %w", ErrInput, err))
	}
	observe("load", stageStart)
	logger.Info().
		Str("graph", graphPath).
		Str("interests", interestPath).
		Int("nodes", g.N).
		Int("edges", g.NumEdges()).
		Int("interest_dim", interests.Dim()).
		Msg("Inputs loaded")

	return Run(ctx, g, interests, opts, logger)
}

// Record converts the result into an archive record.
func (r *Result) Record(graphPath, interestPath string) *store.Record {
	rec := &store.Record{
		RunID:        r.RunID,
		CreatedAt:    r.CreatedAt,
		Status:       "ok",
		GraphPath:    graphPath,
		InterestPath: interestPath,
		Params:       r.Options.Params(),
		Nodes:        r.Nodes,
		Edges:        r.Edges,
		Iterations:   r.Stats.Propagation.Iterations,
		Candidates:   r.Stats.Selection.Candidates,
		RuntimeMS:    r.Stats.RuntimeMS,
		Seeds:        make([]store.SeedEntry, len(r.Seeds)),
	}
	if r.Partition != nil {
		rec.Components = r.Partition.NumComponents
		rec.SCCs = r.Partition.Statistics.NumSCC
		rec.Singletons = r.Partition.Statistics.NumSingletons
		rec.Levels = r.Partition.NumLevels()
	}
	for i, s := range r.Seeds {
		rec.Seeds[i] = store.SeedEntry{Node: s.Node, AvgDistance: s.AvgDistance, Influence: s.Influence}
	}
	return rec
}

// classify wraps err with ErrInput or ErrInvariant according to its cause.
func classify(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrInput), errors.Is(err, ErrInvariant):
		return err
	case errors.Is(err, graph.ErrMalformedInput),
		errors.Is(err, graph.ErrNegativeValue),
		errors.Is(err, graph.ErrInterestDimension),
		errors.Is(err, graph.ErrNodeOutOfRange),
		errors.Is(err, influence.ErrInvalidOptions):
		return fmt.Errorf("%w: %w", ErrInput, err)
	case errors.Is(err, graph.ErrEdgeCountMismatch),
		errors.Is(err, graph.ErrCorruptAdjacency),
		errors.Is(err, partition.ErrCyclicCondensation),
		errors.Is(err, partition.ErrInvariant),
		errors.Is(err, influence.ErrScheduleMismatch),
		errors.Is(err, seeds.ErrInfluenceLength),
		errors.Is(err, cluster.ErrCollectiveMismatch),
		errors.Is(err, cluster.ErrWorkerPanic):
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return err
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInput):
		return "input_error"
	case errors.Is(err, ErrInvariant):
		return "invariant_error"
	}
	return "error"
}

func countFailure(err error) error {
	metrics.RunsTotal.WithLabelValues(status(err)).Inc()
	return err
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func recordSizes(res *Result) {
	metrics.LastRun.WithLabelValues("nodes").Set(float64(res.Nodes))
	metrics.LastRun.WithLabelValues("edges").Set(float64(res.Edges))
	if res.Partition != nil {
		metrics.LastRun.WithLabelValues("components").Set(float64(res.Partition.NumComponents))
		metrics.LastRun.WithLabelValues("levels").Set(float64(res.Partition.NumLevels()))
	}
	metrics.LastRun.WithLabelValues("candidates").Set(float64(res.Stats.Selection.Candidates))
	metrics.LastRun.WithLabelValues("seeds").Set(float64(len(res.Seeds)))
}
