package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-mizu/mizu"

	strerrors "github.com/strand-search/strand/internal/errors"
	"github.com/strand-search/strand/internal/format"
	"github.com/strand-search/strand/internal/index"
	"github.com/strand-search/strand/internal/search"
)

type createIndexPayload struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	PrimaryKey string `json:"primaryKey"`
}

func (s *Server) createIndex(c *mizu.Ctx) error {
	var p createIndexPayload
	if err := c.BindJSON(&p, 0); err != nil {
		return strerrors.Newf(strerrors.ErrCodeInvalidQuery, "invalid JSON body: %v", err)
	}
	if p.UID == "" {
		return strerrors.Newf(strerrors.ErrCodeInvalidIndexUID, "the uid field is required")
	}
	meta, err := s.mgr.Create(p.UID, p.Name, p.PrimaryKey)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, meta)
}

func (s *Server) listIndexes(c *mizu.Ctx) error {
	return c.JSON(http.StatusOK, s.mgr.List())
}

func (s *Server) getIndex(c *mizu.Ctx) error {
	ix, err := s.mgr.Get(c.Param("uid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ix.Meta())
}

type renamePayload struct {
	Name string `json:"name"`
}

func (s *Server) renameIndex(c *mizu.Ctx) error {
	var p renamePayload
	if err := c.BindJSON(&p, 0); err != nil {
		return strerrors.Newf(strerrors.ErrCodeInvalidQuery, "invalid JSON body: %v", err)
	}
	if p.Name == "" {
		return strerrors.Newf(strerrors.ErrCodeInvalidQuery, "the name field is required")
	}
	meta, err := s.mgr.Rename(c.Param("uid"), p.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meta)
}

func (s *Server) deleteIndex(c *mizu.Ctx) error {
	if err := s.mgr.Delete(c.Param("uid")); err != nil {
		return err
	}
	return c.NoContent()
}

func (s *Server) addDocuments(c *mizu.Ctx) error {
	var docs []map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&docs); err != nil {
		return strerrors.Newf(strerrors.ErrCodeInvalidDocument, "invalid JSON body: %v", err)
	}
	pk, err := s.mgr.AddDocuments(c.Param("uid"), docs, c.Query("primaryKey"))
	if err != nil {
		return err
	}
	ix, err := s.mgr.Get(c.Param("uid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"indexedDocuments": len(docs),
		"primaryKey":       pk,
		"totalDocuments":   ix.DocumentCount(),
	})
}

func (s *Server) getSettings(c *mizu.Ctx) error {
	ix, err := s.mgr.Get(c.Param("uid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ix.Settings())
}

func (s *Server) updateSettings(c *mizu.Ctx) error {
	var settings index.Settings
	if err := c.BindJSON(&settings, 0); err != nil {
		return strerrors.Newf(strerrors.ErrCodeInvalidQuery, "invalid JSON body: %v", err)
	}
	if err := s.mgr.UpdateSettings(c.Param("uid"), settings); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings)
}

// searchPayload is the query input, shared by GET (query params) and POST
// (JSON body). Attribute lists distinguish absent (nil) from empty.
type searchPayload struct {
	Q                     string   `json:"q"`
	Offset                int      `json:"offset"`
	Limit                 int      `json:"limit"`
	Sort                  []string `json:"sort"`
	AttributesToRetrieve  []string `json:"attributesToRetrieve"`
	AttributesToHighlight []string `json:"attributesToHighlight"`
	AttributesToCrop      []string `json:"attributesToCrop"`
	CropLength            int      `json:"cropLength"`
	ShowMatchesPosition   bool     `json:"showMatchesPosition"`
	ScoringStrategy       string   `json:"scoringStrategy"`
	HighlightPreTag       string   `json:"highlightPreTag"`
	HighlightPostTag      string   `json:"highlightPostTag"`
	CropMarker            string   `json:"cropMarker"`
}

func (s *Server) searchGet(c *mizu.Ctx) error {
	p := searchPayload{Q: c.Query("q")}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return strerrors.InvalidQuery("offset %q is not an integer", v)
		}
		p.Offset = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return strerrors.InvalidQuery("limit %q is not an integer", v)
		}
		p.Limit = n
	}
	return s.search(c, p)
}

func (s *Server) searchPost(c *mizu.Ctx) error {
	var p searchPayload
	if err := c.BindJSON(&p, 0); err != nil {
		return strerrors.Newf(strerrors.ErrCodeInvalidQuery, "invalid JSON body: %v", err)
	}
	return s.search(c, p)
}

func (s *Server) search(c *mizu.Ctx, p searchPayload) error {
	start := time.Now()

	if p.Limit == 0 {
		p.Limit = s.cfg.Search.DefaultLimit
	}
	if p.Limit > s.cfg.Search.MaxLimit {
		return strerrors.InvalidQuery("limit %d exceeds the maximum of %d", p.Limit, s.cfg.Search.MaxLimit)
	}

	ix, err := s.mgr.Get(c.Param("uid"))
	if err != nil {
		return err
	}
	txn, err := ix.BeginTxn()
	if err != nil {
		return err
	}
	defer txn.Close()

	// The whole retrieval call is blocking and CPU-bound; the request
	// context carries both client disconnect and the server deadline.
	ctx, cancel := context.WithTimeout(c.Context(), s.cfg.Server.QueryTimeout)
	defer cancel()

	logger := search.NewSlogLogger(s.log)
	res, err := search.Search(ctx, txn, s.mgr.Analyzer(), ix.Cache(),
		ix.Settings().RankingRules, search.Request{
			Query:           p.Q,
			Offset:          p.Offset,
			Limit:           p.Limit,
			Sort:            p.Sort,
			ScoringStrategy: search.ParseScoringStrategy(p.ScoringStrategy),
		}, logger)
	if err != nil {
		return err
	}

	matched := map[string]bool{}
	for _, term := range res.Terms {
		for _, w := range term.AllWords() {
			matched[w] = true
		}
	}

	formatter := format.New(s.mgr.Analyzer())
	hits, err := formatter.FormatHits(txn, res.Docids, ix.Settings().DisplayedAttributes, matched, format.Options{
		AttributesToRetrieve:  p.AttributesToRetrieve,
		AttributesToHighlight: p.AttributesToHighlight,
		AttributesToCrop:      p.AttributesToCrop,
		CropLength:            p.CropLength,
		ShowMatchesPosition:   p.ShowMatchesPosition,
		HighlightPreTag:       p.HighlightPreTag,
		HighlightPostTag:      p.HighlightPostTag,
		CropMarker:            p.CropMarker,
	})
	if err != nil {
		return err
	}

	scores := make([][]map[string]any, len(res.Scores))
	for i, vector := range res.Scores {
		scores[i] = make([]map[string]any, len(vector))
		for j, detail := range vector {
			scores[i][j] = map[string]any{detail.RuleID(): detail.Summary()}
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"hits":                hits,
		"query":               p.Q,
		"offset":              p.Offset,
		"limit":               p.Limit,
		"estimatedTotalHits":  res.AllCandidates.GetCardinality(),
		"processingTimeMs":    time.Since(start).Milliseconds(),
		"_rankingScoreDetails": scores,
	})
}
