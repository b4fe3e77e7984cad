package decision

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/productsync/pkg/store"
)

// Register registers match decision routes
func Register(g *echo.Group) {
	g.GET("/:id", GetDecision)
}

// GetDecision gets a match decision by ID
func GetDecision(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, st, err := ectoinject.GetContext[store.Store](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	decision, err := st.GetDecision(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, decision)
}
