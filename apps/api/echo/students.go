package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kudatec/karo/core/ledger"
)

type studentApi struct {
	service *ledger.Service
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *ledger.Service) {
	api := studentApi{service: svc}

	sg := g.Group("/students", jwt)

	staff := staffMiddleware(ledger.RoleAdmin, ledger.RoleBursar)
	sg.POST("", api.studentCreate, staff)
	sg.GET("", api.studentQuery, staff)
	sg.DELETE("/:id", api.studentDestroy, staffMiddleware(ledger.RoleAdmin))
	sg.GET("/:id/ledger", api.studentLedger)
}

// Handlers

func (api *studentApi) studentCreate(ctx echo.Context) error {
	data := new(ledger.NewStudent)
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

	student, err := api.service.CreateStudent(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return success(ctx, http.StatusCreated, echo.Map{"student": student})
}

func (api *studentApi) studentQuery(ctx echo.Context) error {
	students, err := api.service.QueryAllStudents(ctx.Request().Context())
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{"students": students})
}

// studentLedger returns a student's financials plus their transaction trail.
// Staff can read anyone; a student token only reads its own ledger.
func (api *studentApi) studentLedger(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	if !claims.IsAdmin() && !claims.IsBursar() && claims.Subject != id {
		return errHttpForbidden
	}

	student, err := api.service.GetStudent(ctx.Request().Context(), id)
	if err != nil {
		if err == ledger.ErrStudentNotFound {
			return errHttpNotFound
		}
		return err
	}
	txs, err := api.service.QueryStudentTransactions(ctx.Request().Context(), id)
	if err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{
		"financials":   student.Financials,
		"transactions": txs,
	})
}

func (api *studentApi) studentDestroy(ctx echo.Context) error {
	if err := api.service.DeleteStudent(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return success(ctx, http.StatusOK, echo.Map{})
}
