package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/govledger/src/ledger/service"
	"github.com/stake-plus/govledger/src/ledger/types"
)

type Profiles struct {
	ledger *service.Ledger
	clean  sanitizer
}

func NewProfiles(ledger *service.Ledger) Profiles {
	return Profiles{ledger: ledger, clean: newSanitizer()}
}

func (p Profiles) Create(c *gin.Context) {
	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
		ImageURL string `json:"imageUrl"`
		Location string `json:"location"`
		Website  string `json:"website"`
		Bio      string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	id, err := p.ledger.CreateUserProfile(c.GetString("addr"), types.ProfileFields{
		FullName: p.clean.Plain(req.FullName),
		Email:    req.Email,
		ImageURL: req.ImageURL,
		Location: p.clean.Plain(req.Location),
		Website:  req.Website,
		Bio:      p.clean.Rich(req.Bio),
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (p Profiles) List(c *gin.Context) {
	c.JSON(http.StatusOK, p.ledger.ListUserProfiles())
}

func (p Profiles) Get(c *gin.Context) {
	u, err := p.ledger.GetUserProfile(c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
