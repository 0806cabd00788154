// Package producer runs the analysis half of the pipeline: it registers the
// book's chapters as work units, builds the shared reference catalog in a
// first pass over every chapter, then produces per-chapter scene analyses in
// a second pass. The consumer only starts rendering once the catalog is
// complete, so recurring characters are drawn consistently from the first
// illustration onward.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"vellum/internal/book"
	"vellum/internal/catalog"
	"vellum/internal/config"
	"vellum/internal/llm"
	"vellum/internal/logging"
	"vellum/internal/manifest"
	"vellum/internal/retry"
)

// Client is the subset of the model API the producer needs.
type Client interface {
	ExtractReferences(ctx context.Context, chapterTitle, chapterText string) ([]catalog.Entity, llm.Usage, error)
	AnalyzeScenes(ctx context.Context, chapterTitle, chapterText string, refs *catalog.Catalog) (*manifest.Analysis, llm.Usage, error)
}

// Producer analyzes a source book and records results in the manifest.
type Producer struct {
	cfg    *config.Config
	store  *manifest.Store
	client Client
	policy retry.Policy
	logger *slog.Logger
}

// New constructs a producer.
func New(cfg *config.Config, store *manifest.Store, client Client, policy retry.Policy, logger *slog.Logger) *Producer {
	return &Producer{
		cfg:    cfg,
		store:  store,
		client: client,
		policy: policy,
		logger: logging.WithComponent(logger, "producer"),
	}
}

// Run processes the book at bookPath end to end: registration, reference
// pass, analysis pass. Individual chapter failures are recorded against
// their units and do not abort the run; Run returns an error only when the
// pipeline itself cannot proceed.
func (p *Producer) Run(ctx context.Context, bookPath string) error {
	chapters, err := book.ParseFile(bookPath)
	if err != nil {
		return fmt.Errorf("producer: %w", err)
	}
	if err := p.store.RegisterUnits(ctx, book.Seeds(chapters)); err != nil {
		return fmt.Errorf("producer: register units: %w", err)
	}
	p.logger.Info("book registered",
		logging.String("book", bookPath),
		logging.Int("chapters", len(chapters)),
	)

	refs, err := p.buildCatalog(ctx, chapters)
	if err != nil {
		return err
	}

	if err := p.analyzeChapters(ctx, chapters, refs); err != nil {
		return err
	}

	if err := p.store.MarkProducerComplete(ctx); err != nil {
		return fmt.Errorf("producer: mark complete: %w", err)
	}
	p.logger.Info("analysis complete", logging.String(logging.FieldEventType, "producer_complete"))
	return nil
}

// buildCatalog runs the reference pass. On resume the pass is skipped
// entirely when a previous run already published the catalog.
func (p *Producer) buildCatalog(ctx context.Context, chapters []book.Chapter) (*catalog.Catalog, error) {
	health, err := p.store.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("producer: read manifest: %w", err)
	}
	if health.CatalogReady {
		refs, err := catalog.Load(p.cfg.CatalogPath())
		if err != nil {
			return nil, fmt.Errorf("producer: load catalog: %w", err)
		}
		p.logger.Info("catalog already published; skipping reference pass",
			logging.Int("entities", refs.Len()),
		)
		return refs, nil
	}

	refs := catalog.New()
	var mu sync.Mutex

	err = p.forEachChapter(ctx, chapters, func(ctx context.Context, chapter book.Chapter) error {
		var entities []catalog.Entity
		attempts, err := p.policy.Run(ctx, "extract references", func(ctx context.Context) error {
			var callErr error
			entities, _, callErr = p.client.ExtractReferences(ctx, chapter.Title, chapter.Text)
			return callErr
		})
		if err != nil {
			// The catalog must cover every chapter before illustration
			// starts, so a chapter that cannot be mined fails the pass.
			return fmt.Errorf("chapter %d: %w", chapter.ID, err)
		}
		mu.Lock()
		added := refs.Merge(entities)
		mu.Unlock()
		p.logger.Info("chapter references extracted",
			logging.Int(logging.FieldUnitID, chapter.ID),
			logging.Int("entities", len(entities)),
			logging.Int("new_entities", added),
			logging.Int(logging.FieldAttempt, attempts),
		)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("producer: reference pass: %w", err)
	}

	if err := refs.Save(p.cfg.CatalogPath()); err != nil {
		return nil, fmt.Errorf("producer: save catalog: %w", err)
	}
	if err := refs.SaveDocument(p.cfg.CatalogDocumentPath()); err != nil {
		return nil, fmt.Errorf("producer: save catalog document: %w", err)
	}
	if err := p.store.SetCatalogReady(ctx); err != nil {
		return nil, fmt.Errorf("producer: publish catalog: %w", err)
	}
	p.logger.Info("catalog published",
		logging.String(logging.FieldEventType, "catalog_ready"),
		logging.Int("entities", refs.Len()),
	)
	return refs, nil
}

// analyzeChapters runs the scene pass over every unit still awaiting
// analysis. Units a previous run left failed are picked up again, so a
// rerun retries them without an explicit reset. Failures are isolated
// per unit.
func (p *Producer) analyzeChapters(ctx context.Context, chapters []book.Chapter, refs *catalog.Catalog) error {
	health, err := p.store.Health(ctx)
	if err != nil {
		return fmt.Errorf("producer: read manifest: %w", err)
	}
	if health.Pending == 0 && health.Failed == 0 {
		return nil
	}

	m, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("producer: read manifest: %w", err)
	}
	index := book.ByID(chapters)

	var todo []book.Chapter
	for _, unit := range m.UnitsInOrder() {
		if unit.Status != manifest.StatusPending && unit.Status != manifest.StatusFailed {
			continue
		}
		chapter, ok := index[unit.ID]
		if !ok {
			return fmt.Errorf("producer: unit %d has no chapter in source book", unit.ID)
		}
		todo = append(todo, chapter)
	}

	return p.forEachChapter(ctx, todo, func(ctx context.Context, chapter book.Chapter) error {
		var (
			analysis *manifest.Analysis
			usage    llm.Usage
		)
		attempts, err := p.policy.Run(ctx, "analyze scenes", func(ctx context.Context) error {
			var callErr error
			analysis, usage, callErr = p.client.AnalyzeScenes(ctx, chapter.Title, chapter.Text, refs)
			return callErr
		})
		metrics := manifest.Metrics{
			PromptTokens:     int64(usage.PromptTokens),
			CompletionTokens: int64(usage.CompletionTokens),
			CostUSD:          usage.CostUSD,
			Attempts:         attempts,
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("chapter analysis failed",
				logging.Int(logging.FieldUnitID, chapter.ID),
				logging.Error(err),
			)
			if failErr := p.store.FailUnit(ctx, chapter.ID, err); failErr != nil {
				return fmt.Errorf("record failure for unit %d: %w", chapter.ID, failErr)
			}
			return nil
		}
		if err := p.store.StoreAnalysis(ctx, chapter.ID, analysis, metrics); err != nil {
			return fmt.Errorf("store analysis for unit %d: %w", chapter.ID, err)
		}
		p.logger.Info("chapter analyzed",
			logging.Int(logging.FieldUnitID, chapter.ID),
			logging.Int("scenes", len(analysis.Scenes)),
			logging.Int(logging.FieldAttempt, attempts),
		)
		return nil
	})
}

// forEachChapter applies fn to chapters with at most BatchSize in flight.
func (p *Producer) forEachChapter(ctx context.Context, chapters []book.Chapter, fn func(context.Context, book.Chapter) error) error {
	batch := p.cfg.Workflow.BatchSize
	if batch <= 0 {
		batch = 1
	}

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, batch)
		mu       sync.Mutex
		firstErr error
	)
	for _, chapter := range chapters {
		if ctx.Err() != nil {
			break
		}
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(chapter book.Chapter) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, chapter); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(chapter)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
