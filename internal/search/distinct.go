package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/store"
)

// DistinctOutput splits a candidate set into the documents that survive the
// distinct rule and the ones excluded by an earlier survivor.
type DistinctOutput struct {
	Remaining *roaring.Bitmap
	Excluded  *roaring.Bitmap
}

// applyDistinctRule iterates candidates in ascending id order; each not-yet
// excluded document survives and excludes every other document sharing its
// distinct-field value. Among documents sharing a value, the smallest id
// survives.
func applyDistinctRule(ctx *Context, fid store.FieldID, candidates *roaring.Bitmap) (*DistinctOutput, error) {
	remaining := roaring.New()
	excluded := roaring.New()

	it := candidates.Iterator()
	for it.HasNext() {
		docid := it.Next()
		if excluded.Contains(docid) {
			continue
		}
		if err := distinctSingleDocid(ctx, fid, docid, excluded); err != nil {
			return nil, err
		}
		remaining.Add(docid)
	}
	return &DistinctOutput{Remaining: remaining, Excluded: excluded}, nil
}

// distinctSingleDocid adds to excluded every document sharing docid's
// distinct-field value, docid itself excepted. Documents without a value
// exclude nothing.
func distinctSingleDocid(ctx *Context, fid store.FieldID, docid uint32, excluded *roaring.Bitmap) error {
	v, ok, err := ctx.Txn.FieldValue(docid, fid)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	peers, err := ctx.Txn.DocidsWithFieldValue(fid, v)
	if err != nil {
		return err
	}
	peers.Remove(docid)
	excluded.Or(peers)
	return nil
}
