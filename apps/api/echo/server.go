package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/core/payments"
)

type (
	Options struct {
		Addr           string
		DisableReqLogs bool

		LedgerSvc  *ledger.Service
		PaymentSvc *payments.Service
		Logger     core.Logger
	}

	Server interface {
		http.Handler
		Start()
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	debug := core.Conf.Debug

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, func() {
		go func() { _ = s.Stop(context.Background()) }()
	})
	s.app.Debug = debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerStudentAPI(v1, jwt, s.opts.LedgerSvc)
	registerConfigAPI(v1, jwt, s.opts.LedgerSvc)
	registerPaymentAPI(v1, jwt, s.opts.LedgerSvc, s.opts.PaymentSvc)
}

func (s *server) Start() {
	s.app.Logger.Fatal(s.app.Start(s.opts.Addr))
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Karo API!")
}

// success renders the common success envelope.
func success(ctx echo.Context, code int, data echo.Map) error {
	payload := echo.Map{"success": true}
	for k, v := range data {
		payload[k] = v
	}
	return ctx.JSON(code, payload)
}
