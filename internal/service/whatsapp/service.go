package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/pharmacy/internal/domain/models"
	client "github.com/mamadbah2/pharmacy/pkg/clients/whatsapp"
)

// MessagingService sends operator notifications.
type MessagingService interface {
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// MetaWhatsAppService is the production implementation backed by WhatsApp Cloud API.
type MetaWhatsAppService struct {
	client  client.Client
	logger  *zap.Logger
	timeout time.Duration
	limit   int
}

// NewMetaWhatsAppService wires a new service instance.
func NewMetaWhatsAppService(c client.Client, logger *zap.Logger) *MetaWhatsAppService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetaWhatsAppService{
		client:  c,
		logger:  logger,
		timeout: 10 * time.Second,
		limit:   client.MaxTextLength,
	}
}

// SendOutbound delivers req.Message, split on line boundaries into as many
// messages as the API length limit requires. Parts are sent in order and the
// first failure stops the delivery.
func (s *MetaWhatsAppService) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	if strings.TrimSpace(req.To) == "" {
		return errors.New("send outbound: recipient must not be empty")
	}

	parts := splitMessage(req.Message, s.limit)
	for i, part := range parts {
		if err := s.send(ctx, req.To, part, req.PreviewURL); err != nil {
			return fmt.Errorf("send outbound part %d/%d: %w", i+1, len(parts), err)
		}
	}

	s.logger.Info("outbound message sent", zap.String("to", req.To), zap.Int("parts", len(parts)))
	return nil
}

func (s *MetaWhatsAppService) send(ctx context.Context, to, body string, preview bool) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:         to,
		Body:       body,
		PreviewURL: preview,
	})
	return err
}

// splitMessage cuts text into chunks of at most limit bytes, preferring line
// breaks. A single line longer than limit is cut on a rune boundary.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			flush()
		}
		current.WriteString(line)
	}
	flush()

	for i := range parts {
		parts[i] = strings.TrimRight(parts[i], "\n")
	}
	return parts
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
