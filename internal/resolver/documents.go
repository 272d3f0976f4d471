package resolver

import (
	"context"
	"fmt"

	"github.com/mmcdole/lectio/internal/domain"
)

// Documents resolves magisterial documents by category and by id.
type Documents struct {
	*base
}

func NewDocuments(deps Deps) *Documents {
	return &Documents{base: newBase(deps, "documents")}
}

func (d *Documents) indexID(category string) string {
	return fmt.Sprintf("documents:%s:%s", d.deps.Locale, category)
}

// DocumentID is the cache id of a document.
func DocumentID(id string) string { return "document:" + id }

// ByCategory lists the documents of category. The index entry holds ids; each
// document is cached separately so Document(id) hits after a listing.
func (d *Documents) ByCategory(ctx context.Context, category string) Result[[]domain.Document] {
	id := d.indexID(category)
	return coalesce(ctx, d.base, id, func(ctx context.Context) Result[[]domain.Document] {
		ctx, span := d.tracer.Start(ctx, "documents.by_category", attr("category", category))
		defer span.End()

		cached, complete := d.fromIndex(ctx, id)
		if complete {
			return Result[[]domain.Document]{Value: cached, Source: domain.SourceCache}
		}
		partial := Result[[]domain.Document]{Value: cached, Source: domain.SourceNone}
		if len(cached) > 0 {
			partial.Source = domain.SourceCache
		}
		if !d.online() {
			return partial
		}

		rctx, rspan := d.startTier(ctx, "remote")
		docs := normalizeDocuments(d.deps.Remote.DocumentsByCategory(rctx, category), category)
		rspan.End()
		if len(docs) > 0 {
			d.writeBack(ctx, id, category, docs)
			return Result[[]domain.Document]{Value: docs, Source: domain.SourceRemote}
		}

		if !d.online() {
			return partial
		}
		gctx, gspan := d.startTier(ctx, "generative")
		docs = normalizeDocuments(d.deps.Generator.GenerateDocuments(gctx, category, d.deps.Locale), category)
		gspan.End()
		if len(docs) > 0 {
			d.writeBack(ctx, id, category, docs)
			return Result[[]domain.Document]{Value: docs, Source: domain.SourceGenerative}
		}
		return partial
	})
}

// fromIndex loads the documents named by a cached index. complete is false
// when the index is missing or any listed document is not cached.
func (d *Documents) fromIndex(ctx context.Context, indexID string) ([]domain.Document, bool) {
	var ids []string
	if !d.getEntry(ctx, indexID, &ids) || len(ids) == 0 {
		return nil, false
	}
	docs := make([]domain.Document, 0, len(ids))
	for _, docID := range ids {
		var doc domain.Document
		if d.getEntry(ctx, DocumentID(docID), &doc) {
			docs = append(docs, doc)
		}
	}
	return docs, len(docs) == len(ids)
}

// normalizeDocuments drops documents without an id and files the rest under
// category when they carry none.
func normalizeDocuments(docs []domain.Document, category string) []domain.Document {
	out := docs[:0:0]
	for _, doc := range docs {
		if doc.ID == "" {
			continue
		}
		if doc.Category == "" {
			doc.Category = category
		}
		out = append(out, doc)
	}
	return out
}

func (d *Documents) writeBack(ctx context.Context, indexID, category string, docs []domain.Document) {
	keys := make([]string, 0, len(docs)+1)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if d.putEntry(ctx, DocumentID(doc.ID), domain.TypeDocument, doc.Title, doc) {
			keys = append(keys, DocumentID(doc.ID))
			ids = append(ids, doc.ID)
		}
	}
	if len(ids) > 0 && d.putEntry(ctx, indexID, domain.TypeDocumentIndex, category, ids) {
		keys = append(keys, indexID)
	}
	d.publish(DomainDocuments, keys...)
}

// Document resolves one document. An id describes nothing a model could
// generate, so there is no generative tier.
func (d *Documents) Document(ctx context.Context, id string) Result[*domain.Document] {
	cacheID := DocumentID(id)
	return coalesce(ctx, d.base, cacheID, func(ctx context.Context) Result[*domain.Document] {
		ctx, span := d.tracer.Start(ctx, "documents.document", attr("id", id))
		defer span.End()

		var doc domain.Document
		if d.getEntry(ctx, cacheID, &doc) {
			return Result[*domain.Document]{Value: &doc, Source: domain.SourceCache}
		}
		if !d.online() {
			return Result[*domain.Document]{Source: domain.SourceNone}
		}

		rctx, rspan := d.startTier(ctx, "remote")
		remote := d.deps.Remote.Document(rctx, id)
		rspan.End()
		if remote == nil {
			return Result[*domain.Document]{Source: domain.SourceNone}
		}
		if d.putEntry(ctx, cacheID, domain.TypeDocument, remote.Title, remote) {
			d.publish(DomainDocuments, cacheID)
		}
		return Result[*domain.Document]{Value: remote, Source: domain.SourceRemote}
	})
}
