package usecase

import (
	"math"
	"sort"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

// rankMissing marks an item absent from one retrieval leg. Its reciprocal
// rank contribution is zero, matching a rank of positive infinity.
const rankMissing = math.MaxInt32

type fusedChunk struct {
	chunk       domain.RetrievedChunk
	vectorRank  int
	keywordRank int
}

// fuseChunksRRF merges the two retrieval legs with weighted reciprocal
// rank fusion: score = w/(k+rank_v) + (1-w)/(k+rank_k). Items missing from
// a leg contribute nothing for that leg.
func fuseChunksRRF(vector, keyword []domain.RetrievedChunk, rrfK int, vectorWeight float64) []domain.RetrievedChunk {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[int64]fusedChunk, len(vector)+len(keyword))
	get := func(chunk domain.RetrievedChunk) fusedChunk {
		if c, ok := acc[chunk.ChunkID]; ok {
			c.chunk = preferRicherChunk(c.chunk, chunk)
			return c
		}
		return fusedChunk{chunk: chunk, vectorRank: rankMissing, keywordRank: rankMissing}
	}
	for rank, chunk := range vector {
		c := get(chunk)
		c.vectorRank = rank
		acc[chunk.ChunkID] = c
	}
	for rank, chunk := range keyword {
		c := get(chunk)
		c.keywordRank = rank
		acc[chunk.ChunkID] = c
	}

	out := make([]domain.RetrievedChunk, 0, len(acc))
	for _, c := range acc {
		chunk := c.chunk
		chunk.Score = reciprocal(c.vectorRank, rrfK)*vectorWeight + reciprocal(c.keywordRank, rrfK)*(1-vectorWeight)
		out = append(out, chunk)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

type fusedDoc struct {
	hit         domain.DocumentHit
	vectorRank  int
	keywordRank int
}

func fuseDocumentsRRF(vector, keyword []domain.DocumentHit, rrfK int, vectorWeight float64) []domain.DocumentHit {
	if rrfK <= 0 {
		rrfK = 60
	}

	acc := make(map[int64]fusedDoc, len(vector)+len(keyword))
	get := func(hit domain.DocumentHit) fusedDoc {
		if d, ok := acc[hit.DocumentID]; ok {
			if d.hit.Summary == "" {
				d.hit.Summary = hit.Summary
			}
			return d
		}
		return fusedDoc{hit: hit, vectorRank: rankMissing, keywordRank: rankMissing}
	}
	for rank, hit := range vector {
		d := get(hit)
		d.vectorRank = rank
		acc[hit.DocumentID] = d
	}
	for rank, hit := range keyword {
		d := get(hit)
		d.keywordRank = rank
		acc[hit.DocumentID] = d
	}

	out := make([]domain.DocumentHit, 0, len(acc))
	for _, d := range acc {
		hit := d.hit
		hit.Score = reciprocal(d.vectorRank, rrfK)*vectorWeight + reciprocal(d.keywordRank, rrfK)*(1-vectorWeight)
		out = append(out, hit)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

func reciprocal(rank, rrfK int) float64 {
	if rank == rankMissing {
		return 0
	}
	return 1.0 / float64(rrfK+rank+1)
}

func trimChunks(chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func trimDocuments(hits []domain.DocumentHit, limit int) []domain.DocumentHit {
	if limit <= 0 || len(hits) <= limit {
		return hits
	}
	return hits[:limit]
}

// preferRicherChunk keeps whichever copy carries more metadata; the two
// legs select the same columns, so this only matters for score fields.
func preferRicherChunk(current, candidate domain.RetrievedChunk) domain.RetrievedChunk {
	if current.ChunkID == 0 {
		return candidate
	}
	if current.VectorScore == 0 && candidate.VectorScore != 0 {
		current.VectorScore = candidate.VectorScore
	}
	if current.KeywordScore == 0 && candidate.KeywordScore != 0 {
		current.KeywordScore = candidate.KeywordScore
	}
	return current
}
