package controller

import (
	"second-brain-be/internal/dto"
	"second-brain-be/internal/pkg/serverutils"
	"second-brain-be/internal/service"
	"second-brain-be/pkg/rag"

	"github.com/gofiber/fiber/v2"
)

type IRagController interface {
	RegisterRoutes(r fiber.Router)
	Query(ctx *fiber.Ctx) error
	Feedback(ctx *fiber.Ctx) error
	Stats(ctx *fiber.Ctx) error
	Reindex(ctx *fiber.Ctx) error
	RecentQueries(ctx *fiber.Ctx) error
	GetSettings(ctx *fiber.Ctx) error
	UpdateSettings(ctx *fiber.Ctx) error
	ResetSettings(ctx *fiber.Ctx) error
}

type ragController struct {
	orchestrator     *rag.Orchestrator
	indexerService   service.IIndexerService
	settingsService  service.ISettingsService
	analyticsService service.IAnalyticsService
}

func NewRagController(
	orchestrator *rag.Orchestrator,
	indexerService service.IIndexerService,
	settingsService service.ISettingsService,
	analyticsService service.IAnalyticsService,
) IRagController {
	return &ragController{
		orchestrator:     orchestrator,
		indexerService:   indexerService,
		settingsService:  settingsService,
		analyticsService: analyticsService,
	}
}

func (c *ragController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/rag/v1")
	h.Use(serverutils.JwtMiddleware)
	h.Post("query", c.Query)
	h.Post("feedback", c.Feedback)
	h.Get("stats", c.Stats)
	h.Post("reindex", c.Reindex)
	h.Get("queries", c.RecentQueries)
	h.Get("settings", c.GetSettings)
	h.Put("settings", c.UpdateSettings)
	h.Delete("settings", c.ResetSettings)
}

func (c *ragController) Query(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	var req dto.RagQueryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	resp, err := c.orchestrator.Retrieve(ctx.Context(), rag.Query{
		UserId:      userId,
		Text:        req.Query,
		TopK:        req.TopK,
		Threshold:   req.Threshold,
		VectorStore: req.VectorStore,
	})
	if err != nil {
		if err == rag.ErrEmptyQuery {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return err
	}

	chunks := make([]dto.RetrievedChunk, len(resp.Chunks))
	for i, chunk := range resp.Chunks {
		chunks[i] = dto.RetrievedChunk{
			NoteId:     chunk.NoteId,
			NoteTitle:  chunk.NoteTitle,
			Content:    chunk.Content,
			ChunkIndex: chunk.ChunkIndex,
			Score:      chunk.Similarity,
		}
	}

	return ctx.JSON(serverutils.SuccessResponse("Success retrieve", &dto.RagQueryResponse{
		QueryId:    resp.QueryId,
		Chunks:     chunks,
		Context:    resp.Context,
		Degraded:   resp.Degraded,
		Provider:   resp.Provider,
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		CacheHit:   resp.CacheHit,
	}))
}

func (c *ragController) Feedback(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	var req dto.RagFeedbackRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	c.orchestrator.RecordFeedback(ctx.Context(), req.QueryId, userId, *req.Helpful, req.Category, req.Comment)
	return ctx.JSON(serverutils.SuccessResponse("Feedback recorded", nil))
}

func (c *ragController) Stats(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	stats, err := c.orchestrator.IndexStats(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get index stats", &dto.IndexStatsResponse{
		TotalEmbeddings:   stats.TotalEmbeddings,
		UniqueNotes:       stats.UniqueNotes,
		LastIndexedAt:     stats.LastIndexedAt,
		EmbeddingProvider: stats.EmbeddingProvider,
		StoreProvider:     stats.StoreProvider,
	}))
}

func (c *ragController) Reindex(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	resp, err := c.indexerService.ReindexStale(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Reindex scheduled", resp))
}

func (c *ragController) RecentQueries(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	logs, err := c.analyticsService.RecentQueries(ctx.Context(), userId, ctx.QueryInt("limit", 20))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get query history", logs))
}

func (c *ragController) GetSettings(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	resp, err := c.settingsService.Get(ctx.Context(), userId)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get settings", resp))
}

func (c *ragController) UpdateSettings(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	var req dto.RagSettingsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	resp, err := c.settingsService.Update(ctx.Context(), userId, &req)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update settings", resp))
}

func (c *ragController) ResetSettings(ctx *fiber.Ctx) error {
	userId := currentUserId(ctx)

	if err := c.settingsService.Reset(ctx.Context(), userId); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Settings reset to defaults", nil))
}
