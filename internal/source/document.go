package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/pkg/vectorindex"
)

// DocumentAdapter searches the requesting user's own document collection
// via the external similarity index. The user id is baked into the adapter
// at construction so a request can never read another user's documents.
type DocumentAdapter struct {
	client vectorindex.Client
	userID string
	now    func() time.Time
}

// NewDocumentAdapter creates a document index adapter scoped to one user.
func NewDocumentAdapter(client vectorindex.Client, userID string) *DocumentAdapter {
	return &DocumentAdapter{
		client: client,
		userID: userID,
		now:    time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (a *DocumentAdapter) WithNow(now func() time.Time) *DocumentAdapter {
	a.now = now
	return a
}

func (a *DocumentAdapter) Kind() model.SourceKind {
	return model.SourceDocument
}

func (a *DocumentAdapter) Search(ctx context.Context, query string, limit int) ([]model.EvidenceItem, error) {
	chunks, err := a.client.Query(ctx, vectorindex.QueryRequest{
		UserID: a.userID,
		Query:  query,
		TopK:   limit,
	})
	if err != nil {
		return nil, eris.Wrap(model.ErrSourceUnavailable, err.Error())
	}

	fetchedAt := a.now().UTC()
	items := make([]model.EvidenceItem, 0, len(chunks))
	for _, chunk := range chunks {
		items = append(items, model.EvidenceItem{
			SourceKind: model.SourceDocument,
			SourceID:   fmt.Sprintf("%s#%s", chunk.DocumentID, chunk.ChunkID),
			Title:      chunk.Filename,
			Snippet:    chunk.Content,
			Location:   fmt.Sprintf("%s (chunk %s)", chunk.Filename, chunk.ChunkID),
			Score:      chunk.Similarity,
			FetchedAt:  fetchedAt,
		})
	}
	return items, nil
}
