// Package handlers exposes the ledger over HTTP.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/account"
	"github.com/rschio/paytrack/internal/core/document"
	"github.com/rschio/paytrack/internal/core/ledger"
	"github.com/rschio/paytrack/internal/web"
	"github.com/unrolled/secure"
	"go.opentelemetry.io/otel/trace"
)

var errBadRequest = errors.New("bad request")

// Config holds what APIMux needs to build the router.
type Config struct {
	Log         *slog.Logger
	Tracer      trace.Tracer
	Server      *Server
	CORSOrigins []string

	// AuthRateLimit is the number of register and login requests allowed
	// per minute and client address. Zero disables the limit.
	AuthRateLimit int
}

func APIMux(cfg Config) http.Handler {
	s := cfg.Server

	sec := secure.New(secure.Options{
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "no-referrer",
	})

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}),
		sec.Handler,
		middlewareWeb(cfg.Tracer),
		middlewareLogger(cfg.Log),
		middleware.Recoverer,
	)

	r.Get("/liveness", s.Liveness)
	r.Get("/readiness", s.Readiness)

	r.Group(func(r chi.Router) {
		if cfg.AuthRateLimit > 0 {
			r.Use(httprate.Limit(cfg.AuthRateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited),
			))
		}
		r.Post("/users/", s.Register)
		r.Post("/login/", s.Login)
	})

	r.Get("/customers/", s.ListCustomers)
	r.Post("/customers/", s.CreateCustomer)
	r.Delete("/customers/{name}", s.DeleteCustomer)
	r.Post("/customers/borc-ekle/", s.RecordTransaction(ledger.KindDebit, "Borç başarıyla eklendi!"))
	r.Post("/customers/odeme-yap/", s.RecordTransaction(ledger.KindCredit, "Ödeme başarıyla kaydedildi"))
	r.Post("/customers/alacak-ekle/", s.RecordTransaction(ledger.KindAdjustment, "Alacak başarıyla eklendi!"))
	r.Get("/customers/transactions/{name}", s.History)
	r.Get("/dashboard/", s.Dashboard)
	r.Post("/generate-pdf/", s.GeneratePDF)
	r.Get("/pdf/list/{name}", s.ListPDFs)
	r.Get("/pdf/{account}/{key}/{file}", s.ServePDF)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		web.RespondError(r.Context(), w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		web.RespondError(r.Context(), w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return r
}

type Server struct {
	log       *slog.Logger
	accounts  *account.Core
	ledger    *ledger.Core
	documents *document.Core
	ready     func(ctx context.Context) error
	validate  *validator.Validate
}

// NewServer constructs a Server. ready is called by the readiness probe and
// may be nil.
func NewServer(log *slog.Logger, accounts *account.Core, lc *ledger.Core, docs *document.Core, ready func(ctx context.Context) error) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Server{
		log:       log,
		accounts:  accounts,
		ledger:    lc,
		documents: docs,
		ready:     ready,
		validate:  v,
	}
}

func (s *Server) Liveness(w http.ResponseWriter, r *http.Request) {
	web.Respond(r.Context(), w, StatusResp{Status: "up"}, http.StatusOK)
}

func (s *Server) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			s.log.ErrorContext(ctx, "readiness", "ERROR", err)
			web.Respond(ctx, w, StatusResp{Status: "not ready"}, http.StatusInternalServerError)
			return
		}
	}

	web.Respond(ctx, w, StatusResp{Status: "ok"}, http.StatusOK)
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, req RegisterReq) (UserResp, error) {
			a, err := s.accounts.Create(ctx, account.NewAccount{
				Username: req.Username,
				Password: req.Password,
			})
			if err != nil {
				return UserResp{}, err
			}

			return UserResp{
				Message: "Kullanıcı başarıyla oluşturuldu",
				UserID:  a.ID.String(),
			}, nil
		},
	)
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, req LoginReq) (UserResp, error) {
			a, err := s.accounts.Authenticate(ctx, req.Username, req.Password)
			if err != nil {
				return UserResp{}, err
			}

			return UserResp{
				Message: "Giriş başarılı!",
				UserID:  a.ID.String(),
			}, nil
		},
	)
}

func (s *Server) ListCustomers(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) ([]Customer, error) {
			accID, err := s.account(ctx, r.URL.Query().Get("user_id"))
			if err != nil {
				return nil, err
			}

			cs, err := s.ledger.ListCustomers(ctx, accID)
			if err != nil {
				return nil, err
			}

			return toCustomers(cs), nil
		},
	)
}

func (s *Server) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusCreated,
		func(ctx context.Context, req CustomerReq) (CustomerResp, error) {
			if !req.Balance.Valid {
				return CustomerResp{}, fmt.Errorf("%w: borc is required", errBadRequest)
			}

			accID, err := s.account(ctx, req.UserID)
			if err != nil {
				return CustomerResp{}, err
			}

			c, err := s.ledger.CreateCustomer(ctx, accID, ledger.NewCustomer{
				Name:           req.Name,
				Product:        req.Product,
				InitialBalance: req.Balance.Decimal,
			})
			if err != nil {
				return CustomerResp{}, err
			}

			return CustomerResp{
				Message:  "Müşteri başarıyla eklendi!",
				Customer: toCustomer(c),
			}, nil
		},
	)
}

func (s *Server) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (MessageResp, error) {
			accID, err := s.account(ctx, r.URL.Query().Get("user_id"))
			if err != nil {
				return MessageResp{}, err
			}

			name := pathParam(r, "name")
			if err := s.ledger.DeleteCustomer(ctx, accID, name); err != nil {
				return MessageResp{}, err
			}

			if err := s.documents.Purge(ctx, accID, name); err != nil {
				s.log.WarnContext(ctx, "purge documents", "ERROR", err)
			}

			return MessageResp{Message: "Müşteri başarıyla silindi!"}, nil
		},
	)
}

// RecordTransaction returns the handler of the endpoint that records
// transactions of kind k.
func (s *Server) RecordTransaction(k ledger.Kind, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveJSON(w, r, s, http.StatusOK,
			func(ctx context.Context, req TransactionReq) (TransactionResp, error) {
				amount, ok := req.amount()
				if !ok {
					return TransactionResp{}, fmt.Errorf("%w: amount is required", errBadRequest)
				}

				accID, err := s.account(ctx, req.UserID)
				if err != nil {
					return TransactionResp{}, err
				}

				c, err := s.ledger.RecordTransaction(ctx, accID, req.CustomerName, ledger.NewTransaction{
					Kind:        k,
					Amount:      amount,
					Description: req.description(),
				})
				if err != nil {
					return TransactionResp{}, err
				}

				return TransactionResp{
					Message: msg,
					Balance: money(c.Balance),
				}, nil
			},
		)
	}
}

func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (HistoryResp, error) {
			accID, err := s.account(ctx, r.URL.Query().Get("user_id"))
			if err != nil {
				return HistoryResp{}, err
			}

			ts, err := s.ledger.ListTransactions(ctx, accID, pathParam(r, "name"))
			if err != nil {
				return HistoryResp{}, err
			}

			return HistoryResp{
				Success:      true,
				Transactions: toTransactions(ts),
			}, nil
		},
	)
}

func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (DashboardResp, error) {
			accID, err := s.account(ctx, r.URL.Query().Get("user_id"))
			if err != nil {
				return DashboardResp{}, err
			}

			sum, err := s.ledger.DashboardSummary(ctx, accID)
			if err != nil {
				return DashboardResp{}, err
			}

			return toDashboardResp(sum), nil
		},
	)
}

func (s *Server) GeneratePDF(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, req PDFReq) (PDFResp, error) {
			accID, err := s.account(ctx, req.UserID)
			if err != nil {
				return PDFResp{}, err
			}

			doc, err := s.documents.Generate(ctx, accID, req.CustomerName)
			if err != nil {
				return PDFResp{}, err
			}

			return PDFResp{
				Message: "PDF başarıyla oluşturuldu!",
				PDF:     toPDF(doc),
			}, nil
		},
	)
}

func (s *Server) ListPDFs(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, s, http.StatusOK,
		func(ctx context.Context, _ struct{}) (PDFListResp, error) {
			accID, err := s.account(ctx, r.URL.Query().Get("user_id"))
			if err != nil {
				return PDFListResp{}, err
			}

			docs, err := s.documents.List(ctx, accID, pathParam(r, "name"))
			if err != nil {
				return PDFListResp{}, err
			}

			return PDFListResp{
				Success: true,
				PDFs:    toPDFs(docs),
			}, nil
		},
	)
}

func (s *Server) ServePDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accID, err := uuid.Parse(chi.URLParam(r, "account"))
	if err != nil {
		s.respondErr(ctx, w, document.ErrNotFound)
		return
	}

	file := chi.URLParam(r, "file")
	p, err := s.documents.Open(accID, chi.URLParam(r, "key"), file)
	if err != nil {
		s.respondErr(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file}))
	http.ServeFile(w, r, p)
}

// account resolves the user_id sent by the client.
func (s *Server) account(ctx context.Context, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: user_id is required", errBadRequest)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid user_id", errBadRequest)
	}

	a, err := s.accounts.QueryByID(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}

	return a.ID, nil
}

// pathParam returns a decoded URL parameter. Customer names are free text
// and may carry escaped slashes.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func serveJSON[Req any, Resp any](
	w http.ResponseWriter,
	r *http.Request,
	s *Server,
	status int,
	fn func(ctx context.Context, req Req) (Resp, error),
) {
	ctx := r.Context()

	var req Req
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt != "application/json" {
			web.RespondError(ctx, w, "request must be a json", http.StatusBadRequest)
			return
		}

		if err := web.Decode(r, &req); err != nil {
			s.log.InfoContext(ctx, "decoding json", "ERROR", err)
			web.RespondError(ctx, w, "invalid json body", http.StatusBadRequest)
			return
		}

		if err := s.check(req); err != nil {
			s.respondErr(ctx, w, err)
			return
		}
	}

	resp, err := fn(ctx, req)
	if err != nil {
		s.respondErr(ctx, w, err)
		return
	}

	if err := web.Respond(ctx, w, resp, status); err != nil {
		s.log.ErrorContext(ctx, "failed to encode response", "ERROR", err)
		web.RespondError(ctx, w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) check(val any) error {
	err := s.validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make([]string, len(verrs))
	for i, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields[i] = fe.Field() + " is required"
		default:
			fields[i] = fmt.Sprintf("%s must be a valid %s", fe.Field(), fe.Tag())
		}
	}

	return fmt.Errorf("%w: %s", errBadRequest, strings.Join(fields, ", "))
}

func (s *Server) respondErr(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, account.ErrInvalidInput):
		web.RespondError(ctx, w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, account.ErrAuth):
		web.RespondError(ctx, w, err.Error(), http.StatusUnauthorized)

	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, document.ErrNotFound):
		web.RespondError(ctx, w, err.Error(), http.StatusNotFound)

	case errors.Is(err, ledger.ErrDuplicateName),
		errors.Is(err, account.ErrDuplicateUsername):
		web.RespondError(ctx, w, err.Error(), http.StatusConflict)

	case errors.Is(err, document.ErrUnavailable):
		web.RespondError(ctx, w, err.Error(), http.StatusServiceUnavailable)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.log.InfoContext(ctx, "request aborted", "ERROR", err)
		web.RespondError(ctx, w, "request timed out", http.StatusServiceUnavailable)

	default:
		s.log.ErrorContext(ctx, "request failed", "ERROR", err)
		web.RespondError(ctx, w, "internal error", http.StatusInternalServerError)
	}
}
