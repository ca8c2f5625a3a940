package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stake-plus/govledger/src/ledger/service"
	"github.com/stake-plus/govledger/src/ledger/types"
)

type Proposals struct {
	ledger  *service.Ledger
	clean   sanitizer
	isAdmin func(string) bool
	lg      *zap.Logger
}

func NewProposals(ledger *service.Ledger, isAdmin func(string) bool, lg *zap.Logger) Proposals {
	return Proposals{ledger: ledger, clean: newSanitizer(), isAdmin: isAdmin, lg: lg}
}

func (p Proposals) Create(c *gin.Context) {
	var req struct {
		Title           string `json:"title"`
		Description     string `json:"description"`
		DurationDays    int    `json:"durationDays"`
		ImageURL        string `json:"imageUrl"`
		Category        string `json:"category"`
		Author          string `json:"author"`
		FullDescription string `json:"fullDescription"`
		Status          string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	id, err := p.ledger.CreateProposal(c.GetString("addr"), types.ProposalFields{
		Title:           p.clean.Plain(req.Title),
		Description:     p.clean.Rich(req.Description),
		DurationDays:    req.DurationDays,
		ImageURL:        req.ImageURL,
		Category:        p.clean.Plain(req.Category),
		Author:          p.clean.Plain(req.Author),
		FullDescription: p.clean.Rich(req.FullDescription),
		Status:          p.clean.Plain(req.Status),
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (p Proposals) List(c *gin.Context) {
	c.JSON(http.StatusOK, p.ledger.ListProposals())
}

func (p Proposals) Get(c *gin.Context) {
	prop, ok := p.ledger.GetProposal(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"err": "proposal not found"})
		return
	}
	c.JSON(http.StatusOK, prop)
}

func (p Proposals) ByUser(c *gin.Context) {
	list, err := p.ledger.ListProposalsByUser(c.Param("user"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Delete is limited to the proposal's author and configured admins.
func (p Proposals) Delete(c *gin.Context) {
	addr := c.GetString("addr")
	prop, ok := p.ledger.GetProposal(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"err": "proposal not found"})
		return
	}
	if prop.AuthorID != addr && !p.isAdmin(addr) {
		c.JSON(http.StatusForbidden, gin.H{"err": "only the author can delete a proposal"})
		return
	}
	if err := p.ledger.DeleteProposal(prop.ID); err != nil {
		writeErr(c, err)
		return
	}
	p.lg.Info("proposal removed", zap.String("id", prop.ID), zap.String("by", addr))
	c.Status(http.StatusNoContent)
}

func (p Proposals) Vote(c *gin.Context) {
	var req struct {
		Choice string `json:"choice" binding:"required,oneof=yes no"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	id := c.Param("id")
	if err := p.ledger.Vote(id, c.GetString("addr"), types.Choice(req.Choice)); err != nil {
		writeErr(c, err)
		return
	}
	prop, _ := p.ledger.GetProposal(id)
	c.JSON(http.StatusCreated, gin.H{
		"yesVotes":   prop.YesVotes,
		"noVotes":    prop.NoVotes,
		"totalVotes": prop.TotalVotes(),
	})
}

func (p Proposals) MyVote(c *gin.Context) {
	voted, err := p.ledger.HasVoted(c.Param("id"), c.GetString("addr"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voted": voted})
}

func (p Proposals) Results(c *gin.Context) {
	c.JSON(http.StatusOK, p.ledger.Results())
}

func (p Proposals) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, p.ledger.ComputeStats())
}
