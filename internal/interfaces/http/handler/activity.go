package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	appactivity "github.com/licensehub/backend/internal/application/activity"
	"github.com/licensehub/backend/internal/domain/activity"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
)

// ActivityReader reads product traffic through the caller's scope
type ActivityReader interface {
	Conversations(ctx context.Context, actor licensing.Actor, in appactivity.ListInput) (shared.Paginated[activity.Conversation], error)
	Leads(ctx context.Context, actor licensing.Actor, in appactivity.ListInput) (shared.Paginated[activity.Lead], error)
	CampaignStats(ctx context.Context, actor licensing.Actor, in appactivity.ListInput) (shared.Paginated[activity.CampaignStat], error)
}

// ActivityHandler serves the scoped activity reads
type ActivityHandler struct {
	BaseHandler
	reader ActivityReader
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(reader ActivityReader) *ActivityHandler {
	return &ActivityHandler{reader: reader}
}

// ActivityQuery holds paging and time window parameters
type ActivityQuery struct {
	Page     int        `form:"page" binding:"omitempty,min=1"`
	PageSize int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

func (h *ActivityHandler) input(c *gin.Context) (licensing.Actor, appactivity.ListInput, bool) {
	actor, ok := h.actor(c)
	if !ok {
		return actor, appactivity.ListInput{}, false
	}
	q := ActivityQuery{Page: 1, PageSize: 20}
	if !h.BindQuery(c, &q) {
		return actor, appactivity.ListInput{}, false
	}
	return actor, appactivity.ListInput(q), true
}

// Conversations godoc
// @ID           listConversations
// @Summary      List chatbot conversations
// @Description  Conversations recorded under the caller's chatbot keys
// @Tags         activity
// @Produce      json
// @Param        page      query int    false "Page"
// @Param        page_size query int    false "Page size"
// @Param        from      query string false "From (RFC 3339)"
// @Param        to        query string false "To (RFC 3339)"
// @Success      200 {object} APIResponse[[]activity.Conversation]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /conversations [get]
func (h *ActivityHandler) Conversations(c *gin.Context) {
	actor, in, ok := h.input(c)
	if !ok {
		return
	}
	page, err := h.reader.Conversations(c.Request.Context(), actor, in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// Leads godoc
// @ID           listLeads
// @Summary      List outreach leads
// @Description  Leads captured under the caller's outreach keys
// @Tags         activity
// @Produce      json
// @Param        page      query int    false "Page"
// @Param        page_size query int    false "Page size"
// @Param        from      query string false "From (RFC 3339)"
// @Param        to        query string false "To (RFC 3339)"
// @Success      200 {object} APIResponse[[]activity.Lead]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /leads [get]
func (h *ActivityHandler) Leads(c *gin.Context) {
	actor, in, ok := h.input(c)
	if !ok {
		return
	}
	page, err := h.reader.Leads(c.Request.Context(), actor, in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}

// CampaignStats godoc
// @ID           listCampaignStats
// @Summary      List campaign statistics
// @Description  Campaign statistics recorded under the caller's outreach keys
// @Tags         activity
// @Produce      json
// @Param        page      query int    false "Page"
// @Param        page_size query int    false "Page size"
// @Param        from      query string false "From (RFC 3339)"
// @Param        to        query string false "To (RFC 3339)"
// @Success      200 {object} APIResponse[[]activity.CampaignStat]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /campaign-stats [get]
func (h *ActivityHandler) CampaignStats(c *gin.Context) {
	actor, in, ok := h.input(c)
	if !ok {
		return
	}
	page, err := h.reader.CampaignStats(c.Request.Context(), actor, in)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	Paginated(&h.BaseHandler, c, page)
}
