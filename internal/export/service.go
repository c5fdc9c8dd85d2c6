package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docuflex/internal/logging"
)

// Config locates the external renderers.
type Config struct {
	AppName    string
	ChromePath string
	PandocPath string
	Timeout    time.Duration
}

// Service provides document export functionality
type Service struct {
	cfg    Config
	logger *zap.Logger
}

// NewService creates a new export service
func NewService(cfg Config, logger *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Service{cfg: cfg, logger: logging.OrNop(logger).Named("export")}
}

// Render builds the HTML that both output formats are produced from.
func (s *Service) Render(doc Document) (string, error) {
	html, err := renderPage(PageFor(s.cfg.AppName, doc))
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return html, nil
}

// Export renders doc and converts it to format within the configured timeout.
func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	result := &Result{Filename: fileBase(doc.Title) + "." + string(format)}
	switch format {
	case FormatPDF:
		result.MimeType = "application/pdf"
	case FormatDOCX:
		result.MimeType = docxMimeType
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	html, err := s.Render(doc)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if format == FormatPDF {
		result.Data, err = printPDF(ctx, html, s.cfg.ChromePath)
	} else {
		result.Data, err = convertDOCX(ctx, html, doc.Title, s.cfg.PandocPath)
	}
	if err != nil {
		s.logger.Warn("export failed", logging.ItemID(doc.ID), zap.String("format", string(format)), zap.Error(err))
		return nil, err
	}
	s.logger.Info("document exported",
		logging.ItemID(doc.ID),
		zap.String("format", string(format)),
		zap.Int("bytes", len(result.Data)),
	)
	return result, nil
}
