package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/emera/sattur/internal/apperr"
	"github.com/emera/sattur/internal/embedding"
	"github.com/emera/sattur/internal/store"
)

// ErrNoDocuments means the domain's source directory is missing or holds
// no *.txt files.
var ErrNoDocuments = errors.New("no documents")

// Options configures index building and lookups.
type Options struct {
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
	BatchSize    int           `yaml:"batch_size"`  // texts per embedding request
	Concurrency  int           `yaml:"concurrency"` // embedding requests in flight
	Search       SearchOptions `yaml:"search"`
}

// DefaultOptions returns 1000-character chunks with 150 characters of
// overlap.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    1000,
		ChunkOverlap: 150,
		BatchSize:    64,
		Concurrency:  4,
		Search:       DefaultSearchOptions(),
	}
}

// Builder turns domains into retrieval capabilities.
type Builder struct {
	engine embedding.Engine
	opts   Options
	logger *zap.Logger
}

// NewBuilder creates a Builder. engine may be nil, in which case every
// domain is Unavailable.
func NewBuilder(engine embedding.Engine, opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = min(def.ChunkOverlap, opts.ChunkSize/2)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Builder{engine: engine, opts: opts, logger: logger}
}

// BuildOrLoad returns the retrieval capability for d. A persisted index is
// loaded as-is; otherwise one is built from d.SourceDir and persisted.
// Failures are logged and yield Unavailable, never an error.
func (b *Builder) BuildOrLoad(ctx context.Context, d Domain) Retrieval {
	log := b.logger.With(zap.String("domain", d.Name))
	if b.engine == nil {
		log.Warn("no embedding engine configured, retrieval disabled")
		return Unavailable("no embedding engine configured")
	}

	s, err := b.Open(ctx, d, false)
	if errors.Is(err, ErrNoDocuments) {
		log.Warn("no documents to index, retrieval disabled", zap.String("source_dir", d.SourceDir))
		return Unavailable(fmt.Sprintf("no documents in %s", d.SourceDir))
	}
	if err != nil {
		log.Error("index unavailable, retrieval disabled", zap.Error(err))
		return Unavailable(err.Error())
	}

	log.Info("retrieval ready", zap.Int("chunks", s.Len()))
	return Available(func(ctx context.Context, query string) ([]Chunk, error) {
		chunks, err := s.Search(ctx, query)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrRetrievalDegraded, "index.Retrieve", "lookup failed", err)
		}
		return chunks, nil
	})
}

// Open loads the persisted index for d, building it first when there is
// none or when rebuild is set.
func (b *Builder) Open(ctx context.Context, d Domain, rebuild bool) (*Searcher, error) {
	if b.engine == nil {
		return nil, apperr.New(apperr.ErrConfiguration, "index.Open", "no embedding engine configured")
	}

	if !rebuild && fileExists(d.IndexPath) {
		s, err := b.load(ctx, d)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, store.ErrNoIndex) {
			return nil, err
		}
		// The file exists but never received a committed index.
	}

	chunks, err := b.build(ctx, d)
	if err != nil {
		return nil, err
	}
	if err := b.persist(ctx, d, chunks); err != nil {
		return nil, err
	}
	return NewSearcher(b.engine, chunks, b.opts.Search), nil
}

func (b *Builder) load(ctx context.Context, d Domain) (*Searcher, error) {
	st, err := store.Open(d.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", d.IndexPath, err)
	}
	defer st.Close()

	meta, chunks, err := st.IndexRepo().LoadIndex(ctx, d.Name)
	if err != nil {
		return nil, err
	}
	if meta.Embedder != b.engine.Name() {
		return nil, fmt.Errorf("index %s was built with %s but %s is configured; rebuild it",
			d.IndexPath, meta.Embedder, b.engine.Name())
	}
	b.logger.Info("loaded persisted index",
		zap.String("domain", d.Name),
		zap.Int("chunks", len(chunks)),
		zap.Time("built_at", meta.BuiltAt),
	)
	return NewSearcher(b.engine, chunks, b.opts.Search), nil
}

func (b *Builder) build(ctx context.Context, d Domain) ([]store.IndexChunk, error) {
	docs, err := readDocuments(d.SourceDir)
	if err != nil {
		return nil, err
	}

	splitter := NewSplitter(b.opts.ChunkSize, b.opts.ChunkOverlap)
	var chunks []store.IndexChunk
	for _, doc := range docs {
		for _, text := range splitter.Split(doc.content) {
			chunks = append(chunks, store.IndexChunk{
				Source:   doc.name,
				Position: len(chunks),
				Content:  text,
			})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoDocuments
	}

	b.logger.Info("building index",
		zap.String("domain", d.Name),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
	)
	if err := b.embed(ctx, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// embed fills in chunk embeddings, BatchSize texts per request with at most
// Concurrency requests in flight.
func (b *Builder) embed(ctx context.Context, chunks []store.IndexChunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	for start := 0; start < len(chunks); start += b.opts.BatchSize {
		batch := chunks[start:min(start+b.opts.BatchSize, len(chunks))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			vecs, err := b.engine.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", batch[0].Position, batch[len(batch)-1].Position, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed chunks: got %d vectors for %d texts", len(vecs), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) persist(ctx context.Context, d Domain, chunks []store.IndexChunk) error {
	if err := store.EnsureDir(d.IndexPath); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	st, err := store.Open(d.IndexPath)
	if err != nil {
		return fmt.Errorf("open index %s: %w", d.IndexPath, err)
	}
	defer st.Close()

	meta := store.IndexMeta{
		Domain:     d.Name,
		Embedder:   b.engine.Name(),
		Dimensions: b.engine.Dimensions(),
		BuiltAt:    time.Now(),
	}
	if err := st.IndexRepo().SaveIndex(ctx, meta, chunks); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	b.logger.Info("index persisted", zap.String("domain", d.Name), zap.String("path", d.IndexPath))
	return nil
}

type document struct {
	name    string
	content string
}

// readDocuments returns the *.txt files of dir in name order.
func readDocuments(dir string) ([]document, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	var docs []document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		docs = append(docs, document{name: e.Name(), content: string(data)})
	}
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	return docs, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
