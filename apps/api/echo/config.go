package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kudatec/karo/core/ledger"
)

type configApi struct {
	service *ledger.Service
}

// registerConfigAPI mounts term activation/removal and the fee schedule.
// These are admin-only: they mutate the whole population's ledgers.
func registerConfigAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *ledger.Service) {
	api := configApi{service: svc}

	admin := staffMiddleware(ledger.RoleAdmin)

	tg := g.Group("/terms", jwt)
	tg.GET("", api.termQuery, staffMiddleware(ledger.RoleAdmin, ledger.RoleBursar))
	tg.POST("", api.termActivate, admin)
	tg.DELETE("/:key", api.termRemove, admin)

	fg := g.Group("/fees", jwt)
	fg.GET("/schedule", api.scheduleRetrieve, staffMiddleware(ledger.RoleAdmin, ledger.RoleBursar))
	fg.PUT("/schedule", api.scheduleUpdate, admin)
}

// Handlers

func (api *configApi) termQuery(ctx echo.Context) error {
	terms, err := api.service.ActiveTerms(ctx.Request().Context())
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"activeTerms": terms})
}

func (api *configApi) termActivate(ctx echo.Context) error {
	data := new(ledger.TermActivation)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	data.ActorID = claims.Subject

	billed, err := api.service.ActivateTerm(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"term": data.Key, "studentsBilled": billed})
}

func (api *configApi) termRemove(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err := api.service.RemoveTerm(ctx.Request().Context(), ctx.Param("key"), claims.Subject); err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{})
}

func (api *configApi) scheduleRetrieve(ctx echo.Context) error {
	schedule, err := api.service.CurrentFeeSchedule(ctx.Request().Context())
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"feeSchedule": schedule})
}

// scheduleUpdate replaces the fee matrix and rebills every student's open
// terms in the same write.
func (api *configApi) scheduleUpdate(ctx echo.Context) error {
	data := new(ledger.FeeSchedule)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	rebilled, err := api.service.UpdateFeeSchedule(ctx.Request().Context(), *data, claims.Subject)
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"studentsRebilled": rebilled})
}
