package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.inventory.CreateItem(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, "Failed to create item", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listItems(c *gin.Context) {
	items, err := h.inventory.ListItems(c.Request.Context())
	if err != nil {
		h.writeError(c, "Failed to list items", err)
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := items[:0]
		for _, it := range items {
			if string(it.Status) == status {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) getItem(c *gin.Context) {
	item, err := h.inventory.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Item not found", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) updateThresholds(c *gin.Context) {
	var req service.ThresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.inventory.UpdateThresholds(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, "Failed to update thresholds", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) discontinue(c *gin.Context) {
	resp, err := h.inventory.Discontinue(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to discontinue item", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type stockOp func(ctx context.Context, id string, req *service.StockChangeRequest) (*service.StockResponse, error)

// stockChange binds a StockChangeRequest and runs op on the item in the path
func (h *Handler) stockChange(c *gin.Context, message string, op stockOp) {
	var req service.StockChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := op(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, message, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) addStock(c *gin.Context) {
	h.stockChange(c, "Failed to add stock", h.inventory.AddStock)
}

func (h *Handler) removeStock(c *gin.Context) {
	h.stockChange(c, "Failed to remove stock", h.inventory.RemoveStock)
}

func (h *Handler) adjustStock(c *gin.Context) {
	h.stockChange(c, "Failed to adjust stock", h.inventory.AdjustStock)
}

func (h *Handler) returnStock(c *gin.Context) {
	h.stockChange(c, "Failed to return stock", h.inventory.ReturnStock)
}

func (h *Handler) reserveStock(c *gin.Context) {
	h.stockChange(c, "Failed to reserve stock", func(ctx context.Context, id string, req *service.StockChangeRequest) (*service.StockResponse, error) {
		return h.inventory.ReserveStock(ctx, id, req.Quantity)
	})
}

func (h *Handler) releaseStock(c *gin.Context) {
	h.stockChange(c, "Failed to release stock", func(ctx context.Context, id string, req *service.StockChangeRequest) (*service.StockResponse, error) {
		return h.inventory.ReleaseReservation(ctx, id, req.Quantity)
	})
}

func (h *Handler) commitStock(c *gin.Context) {
	h.stockChange(c, "Failed to commit reservation", func(ctx context.Context, id string, req *service.StockChangeRequest) (*service.StockResponse, error) {
		return h.inventory.CommitReservation(ctx, id, req.Quantity, req.Reference)
	})
}

func (h *Handler) countStock(c *gin.Context) {
	var req service.StockCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.inventory.PerformStockCount(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, "Failed to record stock count", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) transferStock(c *gin.Context) {
	var req service.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	resp, err := h.inventory.TransferStock(c.Request.Context(), &req)
	if err != nil {
		var terr *ledger.TransferError
		if errors.As(err, &terr) && resp != nil {
			if !terr.RolledBack() {
				h.writeError(c, "Transfer failed and could not be rolled back", err)
				return
			}
			c.JSON(http.StatusConflict, gin.H{
				"error":    "Transfer failed and was rolled back",
				"details":  err.Error(),
				"transfer": resp,
			})
			return
		}
		h.writeError(c, "Failed to transfer stock", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) itemMovements(c *gin.Context) {
	h.movements(c, c.Param("id"))
}

func (h *Handler) listMovements(c *gin.Context) {
	h.movements(c, c.Query("item_id"))
}

func (h *Handler) movements(c *gin.Context, itemID string) {
	f := ledger.MovementFilter{
		ItemID:    itemID,
		Type:      models.MovementType(c.Query("type")),
		Reference: c.Query("reference"),
	}

	var err error
	if f.From, err = parseTime(c, "from"); err != nil {
		badRequest(c, "Invalid from", err)
		return
	}
	if f.To, err = parseTime(c, "to"); err != nil {
		badRequest(c, "Invalid to", err)
		return
	}
	if raw := c.Query("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
	}

	movements, err := h.inventory.ListMovements(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, "Failed to list movements", err)
		return
	}
	if movements == nil {
		movements = []models.StockMovement{}
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

func (h *Handler) listAlerts(c *gin.Context) {
	alerts, err := h.inventory.ListAlerts(c.Request.Context(), ledger.AlertFilter{
		ItemID: c.Query("item_id"),
		Status: models.AlertStatus(c.Query("status")),
	})
	if err != nil {
		h.writeError(c, "Failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []models.StockAlert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (h *Handler) acknowledgeAlert(c *gin.Context) {
	alert, err := h.inventory.AcknowledgeAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to acknowledge alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) resolveAlert(c *gin.Context) {
	alert, err := h.inventory.ResolveAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to resolve alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) reorderSuggestions(c *gin.Context) {
	suggestions, err := h.inventory.GenerateReorderSuggestions(c.Request.Context())
	if err != nil {
		h.writeError(c, "Failed to generate reorder suggestions", err)
		return
	}
	if suggestions == nil {
		suggestions = []ledger.ReorderSuggestion{}
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// inventoryReport defaults to the 30 days ending now
func (h *Handler) inventoryReport(c *gin.Context) {
	from, err := parseTime(c, "from")
	if err != nil {
		badRequest(c, "Invalid from", err)
		return
	}
	to, err := parseTime(c, "to")
	if err != nil {
		badRequest(c, "Invalid to", err)
		return
	}
	if to == nil {
		now := time.Now().UTC()
		to = &now
	}
	if from == nil {
		start := to.AddDate(0, 0, -30)
		from = &start
	}

	report, err := h.inventory.GetInventoryReport(c.Request.Context(), *from, *to)
	if err != nil {
		h.writeError(c, "Failed to generate report", err)
		return
	}
	c.JSON(http.StatusOK, report)
}
