// Package document renders customer statements to PDF and keeps the
// generated files on disk.
package document

import (
	"bytes"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rschio/paytrack/internal/core/ledger"
	"github.com/rschio/paytrack/internal/web"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Set of errors for document API.
var (
	ErrUnavailable = errors.New("document rendering is not configured")
	ErrNotFound    = errors.New("document not found")
)

const stampLayout = "20060102_150405"

var (
	keyRE  = regexp.MustCompile(`^[0-9a-f]{64}$`)
	fileRE = regexp.MustCompile(`^[0-9]{8}_[0-9]{6}\.pdf$`)
)

//go:embed templates/statement.html
var templates embed.FS

var printer = message.NewPrinter(language.Turkish)

var statementTmpl = template.Must(template.New("statement.html").Funcs(template.FuncMap{
	"money": formatMoney,
	"stamp": func(t time.Time) string {
		return t.Format("02.01.2006 15:04")
	},
	"kind": kindLabel,
}).ParseFS(templates, "templates/statement.html"))

// formatMoney renders d with Turkish digit grouping. The integer part goes
// through the printer for grouping, the fraction is taken from the decimal
// as is.
func formatMoney(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + whole + "," + frac + " ₺"
	}
	return printer.Sprintf("%s%d,%s ₺", sign, n, frac)
}

func kindLabel(k ledger.Kind) string {
	switch k {
	case ledger.KindDebit:
		return "Borç Ekleme"
	case ledger.KindCredit:
		return "Ödeme"
	case ledger.KindAdjustment:
		return "Alacak"
	}
	return string(k)
}

// Source provides the ledger data a statement is built from.
type Source interface {
	QueryCustomer(ctx context.Context, accountID uuid.UUID, name string) (ledger.Customer, error)
	Statement(ctx context.Context, accountID uuid.UUID, name string) (ledger.Statement, error)
}

// Renderer turns an HTML page into a PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Document describes a stored PDF.
type Document struct {
	Filename    string
	URL         string
	DateCreated time.Time
}

// Config holds the storage settings.
type Config struct {
	Root     string
	Keep     int
	Location *time.Location

	// RenderTimeout bounds one rendering, shared by every caller waiting on
	// it. Defaults to 30 seconds.
	RenderTimeout time.Duration
}

// Option configures a Core.
type Option func(*Core)

// WithClock replaces the clock used to stamp documents.
func WithClock(now func() time.Time) Option {
	return func(c *Core) { c.now = now }
}

// Core manages the statements of every account.
type Core struct {
	log      *slog.Logger
	source   Source
	renderer Renderer
	root     string
	keep     int
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time
	group    singleflight.Group
}

// NewCore constructs a Core. A nil renderer disables Generate while stored
// documents stay readable.
func NewCore(log *slog.Logger, source Source, renderer Renderer, cfg Config, opts ...Option) *Core {
	c := Core{
		log:      log,
		source:   source,
		renderer: renderer,
		root:     cfg.Root,
		keep:     max(cfg.Keep, 1),
		loc:      cfg.Location,
		timeout:  cfg.RenderTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Generate renders the current statement of a customer and stores it.
// Concurrent calls for the same customer share one rendering, which keeps
// running when the caller that started it goes away.
func (c *Core) Generate(ctx context.Context, accountID uuid.UUID, name string) (Document, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.document.Generate")
	defer span.End()

	if c.renderer == nil {
		return Document{}, ErrUnavailable
	}

	name = strings.TrimSpace(name)

	ch := c.group.DoChan(path.Join(accountID.String(), customerKey(name)), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.generate(ctx, accountID, name)
	})

	select {
	case <-ctx.Done():
		return Document{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Document{}, res.Err
		}
		return res.Val.(Document), nil
	}
}

func (c *Core) generate(ctx context.Context, accountID uuid.UUID, name string) (Document, error) {
	st, err := c.source.Statement(ctx, accountID, name)
	if err != nil {
		return Document{}, fmt.Errorf("statement: %w", err)
	}
	name = st.Customer.Name

	now := c.now()
	data := struct {
		ledger.Statement
		Generated time.Time
	}{
		Statement: localize(st, c.loc),
		Generated: now.In(c.loc),
	}

	var html bytes.Buffer
	if err := statementTmpl.Execute(&html, data); err != nil {
		return Document{}, fmt.Errorf("execute template: %w", err)
	}

	pdf, err := c.renderer.RenderHTML(ctx, html.String())
	if err != nil {
		return Document{}, fmt.Errorf("render pdf: %w", err)
	}

	dir := c.dir(accountID, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Document{}, fmt.Errorf("create dir: %w", err)
	}

	file := now.UTC().Format(stampLayout) + ".pdf"
	if err := writeFile(filepath.Join(dir, file), pdf); err != nil {
		return Document{}, fmt.Errorf("write pdf: %w", err)
	}

	if err := c.prune(dir); err != nil {
		c.log.WarnContext(ctx, "prune documents", "dir", dir, "err", err)
	}

	doc, _ := c.document(accountID, name, file)

	c.log.InfoContext(ctx, "document generated", "account", accountID, "file", doc.Filename, "bytes", len(pdf))

	return doc, nil
}

// List returns the stored documents of a customer, newest first.
func (c *Core) List(ctx context.Context, accountID uuid.UUID, name string) ([]Document, error) {
	ctx, span := web.AddSpan(ctx, "internal.core.document.List")
	defer span.End()

	cus, err := c.source.QueryCustomer(ctx, accountID, name)
	if err != nil {
		return nil, err
	}
	name = cus.Name

	files, err := pdfFiles(c.dir(accountID, name))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	docs := make([]Document, 0, len(files))
	for _, f := range files {
		if d, ok := c.document(accountID, name, f); ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// Open returns the path of a stored document addressed by the parts of its
// URL.
func (c *Core) Open(accountID uuid.UUID, key, file string) (string, error) {
	if !keyRE.MatchString(key) || !fileRE.MatchString(file) {
		return "", ErrNotFound
	}

	p := filepath.Join(c.root, accountID.String(), key, file)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return p, nil
}

// Purge removes every document of a customer.
func (c *Core) Purge(ctx context.Context, accountID uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if err := os.RemoveAll(c.dir(accountID, name)); err != nil {
		return fmt.Errorf("purge documents: %w", err)
	}
	return nil
}

// Ping reports whether the renderer is reachable. It is a no-op when
// rendering is disabled or the renderer cannot be pinged.
func (c *Core) Ping(ctx context.Context) error {
	p, ok := c.renderer.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

func (c *Core) dir(accountID uuid.UUID, name string) string {
	return filepath.Join(c.root, accountID.String(), customerKey(name))
}

func (c *Core) prune(dir string) error {
	files, err := pdfFiles(dir)
	if err != nil {
		return err
	}
	if len(files) <= c.keep {
		return nil
	}

	var errs []error
	for _, f := range files[c.keep:] {
		if err := os.Remove(filepath.Join(dir, f)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Core) document(accountID uuid.UUID, name, file string) (Document, bool) {
	stamp := strings.TrimSuffix(file, ".pdf")
	t, err := time.ParseInLocation(stampLayout, stamp, time.UTC)
	if err != nil {
		return Document{}, false
	}
	return Document{
		Filename:    fmt.Sprintf("rapor_%s_%s.pdf", name, stamp),
		URL:         path.Join("/pdf", accountID.String(), customerKey(name), file),
		DateCreated: t,
	}, true
}

// customerKey is the directory name of a customer. Names are free text, so
// they are hashed into something safe for paths and URLs.
func customerKey(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// pdfFiles lists the document files of dir, newest first.
func pdfFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && fileRE.MatchString(e.Name()) {
			files = append(files, e.Name())
		}
	}
	slices.Sort(files)
	slices.Reverse(files)
	return files, nil
}

func writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}

func localize(st ledger.Statement, loc *time.Location) ledger.Statement {
	ts := make([]ledger.Transaction, len(st.Transactions))
	for i, t := range st.Transactions {
		t.DateCreated = t.DateCreated.In(loc)
		ts[i] = t
	}
	st.Transactions = ts
	return st
}
