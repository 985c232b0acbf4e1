package http

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/playforge/warehouse/internal/element"
	"github.com/playforge/warehouse/internal/inventory"
	"github.com/playforge/warehouse/internal/ports"
)

// playerRef identifies the player a data request acts on.
type playerRef struct {
	GameID   string `json:"gameId" binding:"required"`
	Branch   string `json:"branch" binding:"required"`
	ClientID string `json:"clientId" binding:"required"`
	Env      string `json:"env" binding:"required"`
}

func (r playerRef) player() ports.Player {
	return ports.Player{GameID: r.GameID, ClientID: r.ClientID, Env: r.Env}
}

// addDataRoutes registers the thin player-data surface in front of the
// element store, inventory ledger and leaderboard engine. Identity extraction
// and authentication sit in front of this process; requests arrive already
// attributed.
func (s *Server) addDataRoutes(r *gin.Engine) {
	if s.elements != nil {
		r.POST("/api/v1/statistic", func(c *gin.Context) {
			var req struct {
				playerRef
				Op        string  `json:"op" binding:"required"`
				ElementID string  `json:"elementId" binding:"required"`
				Value     float64 `json:"value"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"code": "bad_request", "message": err.Error()})
				return
			}
			v, err := s.elements.Statistic(c.Request.Context(), element.StatOp(req.Op), req.player(), req.Branch, req.ElementID, req.Value)
			if err != nil {
				s.dataError(c, err)
				return
			}
			c.JSON(200, gin.H{"value": v})
		})

		r.POST("/api/v1/analytic", func(c *gin.Context) {
			var req struct {
				playerRef
				Op        string      `json:"op" binding:"required"`
				ElementID string      `json:"elementId" binding:"required"`
				Value     ports.Value `json:"value"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"code": "bad_request", "message": err.Error()})
				return
			}
			v, err := s.elements.Analytic(c.Request.Context(), element.AnalyticOp(req.Op), req.player(), req.Branch, req.ElementID, req.Value)
			if err != nil {
				s.dataError(c, err)
				return
			}
			c.JSON(200, gin.H{"value": v})
		})

		r.GET("/api/v1/elements/:elementId", func(c *gin.Context) {
			p := ports.Player{GameID: c.Query("gameId"), ClientID: c.Query("clientId"), Env: c.Query("env")}
			v, err := s.elements.Get(c.Request.Context(), p, c.Query("branch"), c.Param("elementId"))
			if err != nil {
				s.dataError(c, err)
				return
			}
			c.JSON(200, gin.H{"value": v})
		})
	}

	if s.ledger != nil {
		mutate := func(c *gin.Context, f func(ports.Player, string, string, string, *int) (string, error)) {
			var req struct {
				playerRef
				NodeID string `json:"nodeId" binding:"required"`
				Amount string `json:"amount" binding:"required"`
				Slot   *int   `json:"slot"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(400, gin.H{"code": "bad_request", "message": err.Error()})
				return
			}
			total, err := f(req.player(), req.Branch, req.NodeID, req.Amount, req.Slot)
			if err != nil {
				s.dataError(c, err)
				return
			}
			c.JSON(200, gin.H{"nodeId": req.NodeID, "total": total})
		}
		r.POST("/api/v1/inventory/add", func(c *gin.Context) {
			mutate(c, func(p ports.Player, branch, node, amount string, slot *int) (string, error) {
				return s.ledger.Add(c.Request.Context(), p, branch, node, amount, slot)
			})
		})
		r.POST("/api/v1/inventory/remove", func(c *gin.Context) {
			mutate(c, func(p ports.Player, branch, node, amount string, slot *int) (string, error) {
				return s.ledger.Remove(c.Request.Context(), p, branch, node, amount, slot)
			})
		})
		r.GET("/api/v1/inventory", func(c *gin.Context) {
			p := ports.Player{GameID: c.Query("gameId"), ClientID: c.Query("clientId"), Env: c.Query("env")}
			items, err := s.ledger.Items(c.Request.Context(), p, c.Query("branch"))
			if err != nil {
				s.dataError(c, err)
				return
			}
			if items == nil {
				items = []ports.InventoryItem{}
			}
			c.JSON(200, gin.H{"items": items})
		})
	}

	if s.boards != nil && s.boardStore != nil {
		r.GET("/api/v1/leaderboards/:id/top", func(c *gin.Context) {
			gameID, branch := c.Query("gameId"), c.Query("branch")
			boards, err := s.boardStore.ListBoards(c.Request.Context(), gameID, branch)
			if err != nil {
				s.dataError(c, err)
				return
			}
			var board *ports.Leaderboard
			for _, b := range boards {
				if b.ID == c.Param("id") {
					board = b
					break
				}
			}
			if board == nil {
				c.JSON(404, gin.H{"code": "not_found", "message": "unknown leaderboard"})
				return
			}
			tfKey := c.Query("timeframe")
			var tf *ports.Timeframe
			for i := range board.Timeframes {
				if board.Timeframes[i].Key == tfKey {
					tf = &board.Timeframes[i]
					break
				}
			}
			if tf == nil {
				c.JSON(404, gin.H{"code": "not_found", "message": "unknown timeframe"})
				return
			}
			var requester *ports.Player
			if clientID := c.Query("clientId"); clientID != "" {
				requester = &ports.Player{GameID: gameID, ClientID: clientID, Env: c.Query("env")}
			}
			rows, err := s.boards.Top(c.Request.Context(), board, *tf, c.Query("env"), requester)
			if err != nil {
				s.dataError(c, err)
				return
			}
			if rows == nil {
				rows = []ports.Row{}
			}
			c.JSON(200, gin.H{"rows": rows})
		})
	}
}

// dataError maps domain failures onto HTTP statuses: validation failures are
// the caller's problem, store failures are ours.
func (s *Server) dataError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		c.JSON(404, gin.H{"code": "not_found", "message": err.Error()})
	case errors.Is(err, element.ErrOutOfRange),
		errors.Is(err, element.ErrNotNumeric),
		errors.Is(err, element.ErrUnknownOp),
		errors.Is(err, inventory.ErrSlotTaken),
		errors.Is(err, inventory.ErrBadQuantity):
		c.JSON(422, gin.H{"code": "invalid", "message": err.Error()})
	default:
		s.log.Error("data request", "path", c.FullPath(), "err", err)
		c.JSON(500, gin.H{"code": "internal", "message": "internal error"})
	}
}
