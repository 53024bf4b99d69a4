package audit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Uploader interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Config struct {
	Title         string
	LogoPath      string
	OwnerPassword string
	UserPassword  string
}

type Exporter struct {
	fetcher  Fetcher
	uploader Uploader
	cfg      Config
	now      func() time.Time

	// inspect renders without encryption or compression.
	inspect bool
}

func NewExporter(fetcher Fetcher, uploader Uploader, cfg Config) *Exporter {
	if cfg.Title == "" {
		cfg.Title = "Admin Login Audit Report"
	}
	return &Exporter{fetcher: fetcher, uploader: uploader, cfg: cfg, now: time.Now}
}

// Export renders rows into an encrypted PDF and uploads it to the job's
// object key. It returns the report's public URL.
func (e *Exporter) Export(ctx context.Context, job models.ExportJob, rows []models.LoginLogEntry) (string, error) {
	start := time.Now()
	defer func() { observability.ExportDuration.Observe(time.Since(start).Seconds()) }()

	qr, err := qrcode.Encode(job.PublicURL, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}

	thumbs, err := e.loadThumbnails(ctx, rows)
	if err != nil {
		return "", fmt.Errorf("load thumbnails: %w", err)
	}

	doc, err := e.render(job, rows, thumbs, qr)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	url, err := e.uploader.PutObject(ctx, job.ObjectKey, doc, "application/pdf")
	if err != nil {
		return "", apperr.New(apperr.KindUploadFailure, "Report upload failed", err)
	}
	observability.ExportRows.Add(float64(len(rows)))
	slog.Info("login report exported", "job_id", job.ID, "rows", len(rows), "key", job.ObjectKey)
	return url, nil
}

type column struct {
	title string
	width float64
}

var columns = []column{
	{"#", 10},
	{"User", 62},
	{"Status", 18},
	{"Login", 32},
	{"Logout", 32},
	{"Evidence", 36},
}

const (
	rowHeight    = 20.0
	headerHeight = 8.0
	timeLayout   = "2006-01-02 15:04:05"
)

func (e *Exporter) render(job models.ExportJob, rows []models.LoginLogEntry, thumbs []thumbnail, qr []byte) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	if e.inspect {
		pdf.SetCompression(false)
	} else {
		pdf.SetProtection(fpdf.CnProtectPrint|fpdf.CnProtectModify|fpdf.CnProtectCopy|fpdf.CnProtectAnnotForms,
			e.cfg.UserPassword, e.cfg.OwnerPassword)
	}
	pdf.SetTitle(e.cfg.Title, true)
	pdf.SetCreator("facegate", true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	logo := e.registerLogo(pdf)
	generated := e.now().UTC()

	pdf.SetHeaderFunc(func() {
		if pdf.PageNo() == 1 {
			e.reportHeader(pdf, tr, job, logo, generated, len(rows))
		}
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for _, c := range columns {
			pdf.CellFormat(c.width, headerHeight, c.title, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	_, pageH := pdf.GetPageSize()
	pdf.SetFont("Helvetica", "", 8)
	for i, row := range rows {
		if pdf.GetY()+rowHeight > pageH-15 {
			pdf.AddPage()
			pdf.SetFont("Helvetica", "", 8)
		}
		e.tableRow(pdf, i, row, thumbs[i])
	}
	if len(rows) == 0 {
		pdf.CellFormat(0, headerHeight, "No login records match this filter", "1", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Exporter) reportHeader(pdf *fpdf.Fpdf, tr func(string) string, job models.ExportJob, logo string, generated time.Time, n int) {
	textX := 10.0
	if logo != "" {
		pdf.ImageOptions(logo, 10, 10, 0, 16, false, fpdf.ImageOptions{}, 0, "")
		textX = 32
	}
	pdf.ImageOptions("qr", 170, 8, 30, 30, false, fpdf.ImageOptions{}, 0, job.PublicURL)

	pdf.SetXY(textX, 10)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(130, 8, tr(e.cfg.Title), "", 2, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(130, 5, "Generated "+generated.Format(timeLayout)+" UTC", "", 2, "L", false, 0, "")
	pdf.CellFormat(130, 5, describeFilter(job), "", 2, "L", false, 0, "")
	pdf.CellFormat(130, 5, fmt.Sprintf("%d entries", n), "", 2, "L", false, 0, "")
	pdf.SetXY(10, 42)
}

func (e *Exporter) tableRow(pdf *fpdf.Fpdf, i int, row models.LoginLogEntry, th thumbnail) {
	logout := "-"
	if row.LogoutTime != nil {
		logout = row.LogoutTime.UTC().Format(timeLayout)
	}
	cells := []string{
		fmt.Sprint(i + 1),
		row.UserID.String(),
		string(row.Status),
		row.LoginTime.UTC().Format(timeLayout),
		logout,
	}
	for j, text := range cells {
		pdf.CellFormat(columns[j].width, rowHeight, text, "1", 0, "C", false, 0, "")
	}

	evidence := columns[len(columns)-1]
	x, y := pdf.GetXY()
	if th.state != thumbOK {
		pdf.CellFormat(evidence.width, rowHeight, th.placeholder(), "1", 1, "C", false, 0, "")
		return
	}
	pdf.CellFormat(evidence.width, rowHeight, "", "1", 1, "C", false, 0, "")

	name := fmt.Sprintf("evidence-%d", i)
	pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "JPG"}, bytes.NewReader(th.jpeg))
	w, h := fit(float64(th.w), float64(th.h), evidence.width-4, rowHeight-2)
	pdf.ImageOptions(name, x+(evidence.width-w)/2, y+(rowHeight-h)/2, w, h, false, fpdf.ImageOptions{}, 0, "")
}

// registerLogo loads the configured logo. A missing or unreadable logo is
// skipped rather than failing the report.
func (e *Exporter) registerLogo(pdf *fpdf.Fpdf) string {
	if e.cfg.LogoPath == "" {
		return ""
	}
	var typ string
	switch strings.ToLower(filepath.Ext(e.cfg.LogoPath)) {
	case ".png":
		typ = "PNG"
	case ".jpg", ".jpeg":
		typ = "JPG"
	default:
		slog.Warn("unsupported logo format", "path", e.cfg.LogoPath)
		return ""
	}
	data, err := os.ReadFile(e.cfg.LogoPath)
	if err != nil {
		slog.Warn("read report logo", "path", e.cfg.LogoPath, "error", err)
		return ""
	}
	pdf.RegisterImageOptionsReader("logo", fpdf.ImageOptions{ImageType: typ}, bytes.NewReader(data))
	if !pdf.Ok() {
		slog.Warn("decode report logo", "path", e.cfg.LogoPath, "error", pdf.Error())
		pdf.ClearError()
		return ""
	}
	return "logo"
}

func describeFilter(job models.ExportJob) string {
	parts := []string{}
	if job.UserID != nil {
		parts = append(parts, "user "+job.UserID.String())
	}
	if job.From != nil {
		parts = append(parts, "from "+job.From.UTC().Format(timeLayout))
	}
	if job.To != nil {
		parts = append(parts, "to "+job.To.UTC().Format(timeLayout))
	}
	if len(parts) == 0 {
		return "All login records"
	}
	return "Filter: " + strings.Join(parts, ", ")
}

func fit(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := min(maxW/w, maxH/h)
	return w * scale, h * scale
}
