package rest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

const MAX_PAGE_SIZE = 100

// PageQueryParams holds the pagination parameters of list endpoints
type PageQueryParams struct {
	Limit  int `form:"limit,default=20"`
	Offset int `form:"offset,default=0"`
}

// ParsePageQuery parses and caps pagination parameters
func ParsePageQuery(c *gin.Context) (*PageQueryParams, error) {
	var params PageQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		return nil, err
	}

	if params.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if params.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}

	// Cap limit
	if params.Limit > MAX_PAGE_SIZE {
		params.Limit = MAX_PAGE_SIZE
	}

	return &params, nil
}

// addressParam returns the path parameter when it is a hex address
func addressParam(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if !common.IsHexAddress(id) {
		return "", false
	}
	return id, true
}
