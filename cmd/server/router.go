package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"embedknn/internal/corpus"
	"embedknn/internal/knn"
	"embedknn/internal/log"
	"embedknn/internal/service"

	"github.com/gin-gonic/gin"
)

const defaultK = 5

type embedRequest struct {
	Text string `json:"text" binding:"required"`
}

type searchRequest struct {
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector"`
	Metric   string    `json:"metric"`
	K        int       `json:"k"`
	Strategy string    `json:"strategy"`
}

type documentRequest struct {
	DocID string `json:"doc_id" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

type indexRequest struct {
	Path string `json:"path"`
}

func newRouter(svc *service.SearchService) *gin.Engine {
	router := gin.Default()

	// Simple health check endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "KNN search backend is running!",
			"corpus":  svc.CorpusPath(),
		})
	})

	router.POST("/embed", func(c *gin.Context) {
		var req embedRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		vec, err := svc.Embed(c.Request.Context(), req.Text)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"embedding": vec, "dimensions": len(vec)})
	})

	router.POST("/search", func(c *gin.Context) {
		var req searchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		metric, strategy, k, err := req.options()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		var res *knn.Result
		switch {
		case len(req.Vector) > 0:
			res, err = svc.SearchVector(ctx, req.Vector, metric, k, strategy)
		case req.Text != "":
			res, err = svc.Search(ctx, req.Text, metric, k, strategy)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "text or vector is required"})
			return
		}
		if err != nil {
			log.ErrorLogger.Printf("Search failed: %v", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	router.POST("/documents", func(c *gin.Context) {
		var req documentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.AddDocument(c.Request.Context(), req.DocID, req.Text); err != nil {
			log.ErrorLogger.Printf("Failed to add document %s: %v", req.DocID, err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"doc_id": req.DocID})
	})

	// Endpoint to trigger directory indexing
	router.POST("/index", func(c *gin.Context) {
		var req indexRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// If no path is provided, use the current working directory.
		path := req.Path
		if path == "" {
			var err error
			path, err = os.Getwd()
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not get working directory"})
				return
			}
		}

		// Run indexing asynchronously; the request context ends with the response.
		go func(path string) {
			stats, err := svc.IndexDirectory(context.Background(), path)
			if err != nil {
				log.ErrorLogger.Printf("ERROR: Failed to index directory async: %v", err)
				return
			}
			log.InfoLogger.Printf("Async indexing completed for directory %s: %d chunks embedded", path, stats.Embedded)
		}(path)

		c.JSON(http.StatusAccepted, gin.H{
			"message": "Indexing started for directory: " + path,
		})
	})

	return router
}

// options applies defaults: cosine, load_all and k = 5.
func (r searchRequest) options() (knn.Metric, knn.LoadStrategy, int, error) {
	metric, strategy, k := knn.MetricCosine, knn.LoadAll, r.K
	var err error
	if r.Metric != "" {
		if metric, err = knn.ParseMetric(r.Metric); err != nil {
			return 0, 0, 0, err
		}
	}
	if r.Strategy != "" {
		if strategy, err = knn.ParseLoadStrategy(r.Strategy); err != nil {
			return 0, 0, 0, err
		}
	}
	if k == 0 {
		k = defaultK
	}
	return metric, strategy, k, nil
}

func statusFor(err error) int {
	var (
		loadErr *knn.CorpusLoadError
		dimErr  *knn.DimensionMismatchError
	)
	switch {
	case errors.Is(err, service.ErrEmbeddingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, knn.ErrInvalidK), errors.Is(err, knn.ErrEmptyQuery), errors.Is(err, knn.ErrNonFiniteQuery),
		errors.Is(err, corpus.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, corpus.ErrDuplicateID):
		return http.StatusConflict
	case errors.As(err, &dimErr), errors.Is(err, corpus.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.As(err, &loadErr) && errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
