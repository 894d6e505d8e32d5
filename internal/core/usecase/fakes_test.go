package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type docRepoFake struct {
	mu           sync.Mutex
	nextID       int64
	byID         map[int64]*domain.Document
	bySHA        map[string]*domain.Document
	fingerprints []domain.FileFingerprint
	unsegmented  []domain.Document
	claimEnrich  []domain.Document
	claimEmbed   []domain.Document

	inserted      []*domain.Document
	repointed     []int64
	reextracted   []int64
	staleDocs     int
	staleDocCalls int
	savedSummary  map[int64]string
	savedEmbed    map[int64][]float32
	docStatuses   map[int64]domain.DocStatus
	fileStatuses  map[int64]domain.DocumentStatus
	resets        []int64
	getErr        error
	saveEnrichErr error
}

func newDocRepoFake() *docRepoFake {
	return &docRepoFake{
		byID:         map[int64]*domain.Document{},
		bySHA:        map[string]*domain.Document{},
		savedSummary: map[int64]string{},
		savedEmbed:   map[int64][]float32{},
		docStatuses:  map[int64]domain.DocStatus{},
		fileStatuses: map[int64]domain.DocumentStatus{},
	}
}

func (f *docRepoFake) add(doc *domain.Document) *domain.Document {
	f.nextID++
	doc.ID = f.nextID
	f.byID[doc.ID] = doc
	if doc.SHA256 != "" {
		f.bySHA[doc.SHA256] = doc
	}
	return doc
}

func (f *docRepoFake) Insert(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.add(doc)
	f.inserted = append(f.inserted, doc)
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id int64) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id %d", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) GetBySHA256(_ context.Context, sha string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.bySHA[sha]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get document by hash", fmt.Errorf("sha %s", sha))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docRepoFake) RepointPath(_ context.Context, id int64, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repointed = append(f.repointed, id)
	if stored, ok := f.byID[id]; ok {
		stored.Path = doc.Path
		stored.Filename = doc.Filename
		stored.MTime = doc.MTime
		stored.SizeBytes = doc.SizeBytes
	}
	return nil
}

func (f *docRepoFake) UpdateExtraction(_ context.Context, id int64, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reextracted = append(f.reextracted, id)
	if stored, ok := f.byID[id]; ok {
		*stored = *doc
		stored.ID = id
	}
	return nil
}

func (f *docRepoFake) ReleaseStale(context.Context, int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleDocCalls++
	return f.staleDocs, nil
}

func (f *docRepoFake) ListFingerprints(context.Context) ([]domain.FileFingerprint, error) {
	return f.fingerprints, nil
}

func (f *docRepoFake) ListUnsegmented(context.Context, int) ([]domain.Document, error) {
	return f.unsegmented, nil
}

func (f *docRepoFake) ClaimForEnrichment(context.Context, int) ([]domain.Document, error) {
	out := f.claimEnrich
	f.claimEnrich = nil
	return out, nil
}

func (f *docRepoFake) SaveDocEnrichment(_ context.Context, id int64, summary string, _ domain.DocEnrichment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveEnrichErr != nil {
		return f.saveEnrichErr
	}
	f.savedSummary[id] = summary
	return nil
}

func (f *docRepoFake) ClaimForEmbedding(context.Context, int) ([]domain.Document, error) {
	out := f.claimEmbed
	f.claimEmbed = nil
	return out, nil
}

func (f *docRepoFake) SaveDocEmbedding(_ context.Context, id int64, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedEmbed[id] = embedding
	return nil
}

func (f *docRepoFake) SetDocStatus(_ context.Context, id int64, status domain.DocStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docStatuses[id] = status
	return nil
}

func (f *docRepoFake) SetStatus(_ context.Context, id int64, status domain.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileStatuses[id] = status
	return nil
}

func (f *docRepoFake) ResetDoc(_ context.Context, id int64) error {
	f.resets = append(f.resets, id)
	return nil
}

type chunkRepoFake struct {
	mu              sync.Mutex
	existing        map[string]bool
	claimPending    []domain.Chunk
	claimUnembedded []domain.Chunk

	inserted        []domain.Chunk
	savedEnrich     []domain.Chunk
	failures        map[int64]int
	released        []int64
	staleChunks     int
	staleChunkCalls int
	savedEmbed      map[int64][]float32
	review          []domain.Chunk
	reviewLimit     int
	resets          []int64
}

func newChunkRepoFake() *chunkRepoFake {
	return &chunkRepoFake{
		existing:   map[string]bool{},
		failures:   map[int64]int{},
		savedEmbed: map[int64][]float32{},
	}
}

func (f *chunkRepoFake) InsertBatch(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *chunkRepoFake) GetByID(_ context.Context, id int64) (*domain.Chunk, error) {
	return nil, domain.WrapError(domain.ErrNotFound, "get chunk", fmt.Errorf("id %d", id))
}

func (f *chunkRepoFake) ExistingHashes(_ context.Context, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		if f.existing[h] {
			out[h] = true
		}
	}
	return out, nil
}

func (f *chunkRepoFake) ClaimPending(context.Context, int) ([]domain.Chunk, error) {
	out := f.claimPending
	f.claimPending = nil
	return out, nil
}

func (f *chunkRepoFake) SaveEnrichment(_ context.Context, chunk *domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedEnrich = append(f.savedEnrich, *chunk)
	return nil
}

func (f *chunkRepoFake) RecordFailure(_ context.Context, id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id]++
	return f.failures[id], nil
}

func (f *chunkRepoFake) Release(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	return nil
}

func (f *chunkRepoFake) ReleaseStale(context.Context, int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleChunkCalls++
	return f.staleChunks, nil
}

func (f *chunkRepoFake) ClaimUnembedded(context.Context, int) ([]domain.Chunk, error) {
	out := f.claimUnembedded
	f.claimUnembedded = nil
	return out, nil
}

func (f *chunkRepoFake) SaveEmbedding(_ context.Context, id int64, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedEmbed[id] = embedding
	return nil
}

func (f *chunkRepoFake) ListNeedingReview(_ context.Context, limit int) ([]domain.Chunk, error) {
	f.reviewLimit = limit
	return f.review, nil
}

func (f *chunkRepoFake) Reset(_ context.Context, id int64) error {
	f.resets = append(f.resets, id)
	return nil
}

type llmFake struct {
	mu        sync.Mutex
	provider  domain.Provider
	genJSON   func(prompt string, out any) error
	embed     func(text string) ([]float32, error)
	described string
	embeds    []string
}

func (f *llmFake) GenerateText(context.Context, string, string) (string, error) {
	return "", nil
}

func (f *llmFake) GenerateJSON(_ context.Context, prompt, _ string, out any) error {
	if f.genJSON == nil {
		return nil
	}
	return f.genJSON(prompt, out)
}

func (f *llmFake) Embed(_ context.Context, text, _ string) ([]float32, error) {
	f.mu.Lock()
	f.embeds = append(f.embeds, text)
	f.mu.Unlock()
	if f.embed == nil {
		return []float32{0.1}, nil
	}
	return f.embed(text)
}

func (f *llmFake) DescribeImage(context.Context, string, string, string) (string, error) {
	return f.described, nil
}

func (f *llmFake) Provider() domain.Provider {
	if f.provider.Kind == "" {
		return domain.Provider{
			Kind:         domain.ProviderOllama,
			Capabilities: domain.Capabilities{Chat: true, Embedding: true, Vision: true},
		}
	}
	return f.provider
}

type searchRepoFake struct {
	keywordChunks   []domain.RetrievedChunk
	vectorChunks    []domain.RetrievedChunk
	hybridChunks    []domain.RetrievedChunk
	keywordDocs     []domain.DocumentHit
	vectorDocs      []domain.DocumentHit
	keywordChunksIn []domain.RetrievedChunk
	vectorChunksIn  []domain.RetrievedChunk
	anyEmbedded     bool

	keywordCalls  int
	hybridCalls   int
	inDocIDs      []int64
	hybridWeights []float64
}

func (f *searchRepoFake) KeywordChunks(_ context.Context, _ string, _ int, _ domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	f.keywordCalls++
	return f.keywordChunks, nil
}

func (f *searchRepoFake) VectorChunks(context.Context, []float32, int, domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	return f.vectorChunks, nil
}

func (f *searchRepoFake) HybridChunks(_ context.Context, _ string, _ []float32, _ int, weight float64, _ domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	f.hybridCalls++
	f.hybridWeights = append(f.hybridWeights, weight)
	return f.hybridChunks, nil
}

func (f *searchRepoFake) KeywordDocuments(context.Context, string, int) ([]domain.DocumentHit, error) {
	return f.keywordDocs, nil
}

func (f *searchRepoFake) VectorDocuments(context.Context, []float32, int) ([]domain.DocumentHit, error) {
	return f.vectorDocs, nil
}

func (f *searchRepoFake) KeywordChunksIn(_ context.Context, _ string, docIDs []int64, _ int, _ domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	f.inDocIDs = docIDs
	return f.keywordChunksIn, nil
}

func (f *searchRepoFake) VectorChunksIn(_ context.Context, _ []float32, docIDs []int64, _ int, _ domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	f.inDocIDs = docIDs
	return f.vectorChunksIn, nil
}

func (f *searchRepoFake) AnyEmbeddedChunks(context.Context, []int64) (bool, error) {
	return f.anyEmbedded, nil
}

type workerRepoFake struct {
	configs    map[string]domain.WorkerConfig
	registered []string
	heartbeats int
	staleCalls int
	progress   map[string]map[domain.Phase]domain.PhaseProgress
	listed     []domain.Worker
	configErr  error
}

func newWorkerRepoFake() *workerRepoFake {
	return &workerRepoFake{
		configs:  map[string]domain.WorkerConfig{},
		progress: map[string]map[domain.Phase]domain.PhaseProgress{},
	}
}

func (f *workerRepoFake) Register(_ context.Context, worker *domain.Worker) error {
	f.registered = append(f.registered, worker.ID)
	return nil
}

func (f *workerRepoFake) Get(_ context.Context, id string) (*domain.Worker, error) {
	return &domain.Worker{ID: id, Config: f.configs[id]}, nil
}

func (f *workerRepoFake) List(context.Context, bool) ([]domain.Worker, error) {
	return f.listed, nil
}

func (f *workerRepoFake) Heartbeat(context.Context, string, domain.WorkerStatus, domain.Phase, string, map[string]float64) error {
	f.heartbeats++
	return nil
}

func (f *workerRepoFake) GetConfig(_ context.Context, id string) (domain.WorkerConfig, error) {
	if f.configErr != nil {
		return domain.WorkerConfig{}, f.configErr
	}
	return f.configs[id], nil
}

func (f *workerRepoFake) UpdateConfig(_ context.Context, id string, config domain.WorkerConfig) error {
	f.configs[id] = config
	return nil
}

func (f *workerRepoFake) UpdateProgress(_ context.Context, id string, phase domain.Phase, progress domain.PhaseProgress) error {
	if f.progress[id] == nil {
		f.progress[id] = map[domain.Phase]domain.PhaseProgress{}
	}
	f.progress[id][phase] = progress
	return nil
}

func (f *workerRepoFake) MarkStale(context.Context, int) (int, error) {
	f.staleCalls++
	return 0, nil
}

func (f *workerRepoFake) Deregister(context.Context, string) error { return nil }

type linkRepoFake struct {
	replaced map[int64][]domain.Link
}

func (f *linkRepoFake) ReplaceForDocument(_ context.Context, documentID int64, links []domain.Link) error {
	if f.replaced == nil {
		f.replaced = map[int64][]domain.Link{}
	}
	f.replaced[documentID] = links
	return nil
}

type segmenterFake struct {
	segments []domain.Segment
}

func (f *segmenterFake) Segment(string, string) []domain.Segment { return f.segments }

type linkExtractorFake struct {
	links []domain.Link
}

func (f *linkExtractorFake) ExtractLinks(string) []domain.Link { return f.links }

type extractorFake struct {
	text     string
	fileType string
	err      error
}

func (f *extractorFake) Extract(context.Context, string, string) (domain.Extraction, error) {
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	fileType := f.fileType
	if fileType == "" {
		fileType = "text"
	}
	return domain.Extraction{Text: f.text, FileType: fileType}, nil
}

func (f *extractorFake) Supports(string) bool { return true }

type thumbnailerFake struct {
	generated []int64
}

func (f *thumbnailerFake) Generate(_ context.Context, _ string, documentID int64) error {
	f.generated = append(f.generated, documentID)
	return nil
}
