package countries

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Country is the response model for the registration form dropdown.
type Country struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	ShortCode string `json:"short_code"`
}

// RegisterRoutes registers GET /countries with a static minimal list for now.
func RegisterRoutes(r *gin.Engine) {
	r.GET("/countries", func(c *gin.Context) {
		// Minimal seed list; extend as needed or read from DB.
		data := []Country{
			{ID: 1, Name: "United States", ShortCode: "US"},
			{ID: 2, Name: "United Kingdom", ShortCode: "GB"},
			{ID: 3, Name: "Canada", ShortCode: "CA"},
			{ID: 4, Name: "Australia", ShortCode: "AU"},
			{ID: 5, Name: "Germany", ShortCode: "DE"},
			{ID: 6, Name: "France", ShortCode: "FR"},
			{ID: 7, Name: "Spain", ShortCode: "ES"},
			{ID: 8, Name: "Mexico", ShortCode: "MX"},
			{ID: 9, Name: "Brazil", ShortCode: "BR"},
			{ID: 10, Name: "India", ShortCode: "IN"},
		}
		c.JSON(http.StatusOK, data)
	})
}
