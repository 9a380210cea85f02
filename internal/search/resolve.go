package search

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/strand-search/strand/internal/analyzer"
)

// unionWordDocids returns the documents containing any of words.
func unionWordDocids(ctx *Context, words []string) (*roaring.Bitmap, error) {
	out := roaring.New()
	for _, w := range words {
		bm, err := ctx.Txn.WordDocids(w)
		if err != nil {
			return nil, err
		}
		out.Or(bm)
	}
	return out, nil
}

// termKey renders a stable cache key fragment for a located term: word,
// position and variant shape all influence resolution.
func termKey(t *analyzer.LocatedQueryTerm) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%d", t.Word, t.Position)
	if t.Prefix {
		b.WriteString("+p")
	}
	if t.InPhrase {
		b.WriteString("+q")
	}
	fmt.Fprintf(&b, "/%d.%d.%d", len(t.ZeroTypo), len(t.OneTypo), len(t.TwoTypo))
	return b.String()
}
